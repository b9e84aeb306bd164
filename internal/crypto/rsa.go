package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"securechat/internal/domain"
)

// DefaultKeyBits is the modulus size used when none is configured.
const DefaultKeyBits = 2048

var (
	ErrKeyGeneration = fmt.Errorf("%w: key generation failed", domain.ErrCrypto)
	ErrEncryption    = fmt.Errorf("%w: encryption failed", domain.ErrCrypto)
	ErrDecryption    = fmt.Errorf("%w: decryption failed", domain.ErrCrypto)
	ErrKeyFormat     = fmt.Errorf("%w: malformed key", domain.ErrCrypto)
)

// KeyPair holds an RSA private key and its public half.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// SupportedKeySize reports whether bits is an accepted modulus size.
func SupportedKeySize(bits int) bool {
	switch bits {
	case 2048, 3072, 4096:
		return true
	}
	return false
}

// GenerateKeyPair returns a fresh RSA key pair with public exponent 65537.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if !SupportedKeySize(bits) {
		return nil, fmt.Errorf("%w: unsupported key size %d", ErrKeyGeneration, bits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(priv *rsa.PrivateKey) *KeyPair {
	return &KeyPair{Private: priv, Public: &priv.PublicKey}
}

// MaxPlaintextSize is the largest plaintext Encrypt accepts for pub.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	if pub == nil {
		return 0
	}
	n := pub.Size() - 2*sha256.Size - 2
	if n < 0 {
		return 0
	}
	return n
}

// Encrypt seals plaintext to pub with RSA-OAEP/SHA-256.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: no public key", ErrEncryption)
	}
	if len(plaintext) > MaxPlaintextSize(pub) {
		return nil, fmt.Errorf("%w: plaintext is %d bytes, limit is %d",
			ErrEncryption, len(plaintext), MaxPlaintextSize(pub))
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	return ct, nil
}

// Decrypt opens an RSA-OAEP/SHA-256 ciphertext with priv.
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrDecryption
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

// EncryptString encrypts plaintext and returns the base64 wire form.
func EncryptString(pub *rsa.PublicKey, plaintext string) (string, error) {
	ct, err := Encrypt(pub, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return B64(ct), nil
}

// DecryptString decodes a base64 wire ciphertext and decrypts it. Bad base64
// is reported as ErrDecryption, like any other rejected ciphertext.
func DecryptString(priv *rsa.PrivateKey, encoded string) ([]byte, error) {
	ct, err := FromB64(encoded)
	if err != nil {
		return nil, ErrDecryption
	}
	return Decrypt(priv, ct)
}
