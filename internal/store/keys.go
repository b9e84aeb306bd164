package store

import (
	"encoding/pem"
	"errors"
	"fmt"

	"securechat/internal/crypto"
	"securechat/internal/util/memzero"
)

const (
	privateKeyMode = 0o600
	publicKeyMode  = 0o644

	sealedPEMType = "ENCRYPTED CHAT PRIVATE KEY"
)

var (
	// ErrMissingPrivateKey is returned when a public key exists on disk
	// without its private key.
	ErrMissingPrivateKey = errors.New("store: public key present but private key missing")

	// ErrKeyMismatch is returned when the stored public key does not belong
	// to the stored private key.
	ErrKeyMismatch = errors.New("store: public key does not match private key")

	// ErrPassphraseRequired is returned when the private key is sealed and
	// no passphrase was supplied.
	ErrPassphraseRequired = errors.New("store: private key is sealed, passphrase required")
)

// KeyFiles locates the server's key pair on disk.
type KeyFiles struct {
	PrivatePath string
	PublicPath  string

	// Bits is the modulus size for a newly generated pair.
	Bits int

	// Passphrase seals the private key when non-empty.
	Passphrase string
}

// LoadOrGenerate returns the stored pair, creating it on first use. If the
// private key exists but the public key does not, the public key is
// re-derived and written. generated reports whether a new pair was made.
func (kf KeyFiles) LoadOrGenerate() (kp *crypto.KeyPair, generated bool, err error) {
	privOK, err := exists(kf.PrivatePath)
	if err != nil {
		return nil, false, err
	}
	pubOK, err := exists(kf.PublicPath)
	if err != nil {
		return nil, false, err
	}

	switch {
	case !privOK && pubOK:
		return nil, false, fmt.Errorf("%w: %s", ErrMissingPrivateKey, kf.PrivatePath)
	case !privOK:
		kp, err = crypto.GenerateKeyPair(kf.Bits)
		if err != nil {
			return nil, false, err
		}
		if err := kf.Save(kp); err != nil {
			return nil, false, err
		}
		return kp, true, nil
	}

	kp, err = kf.loadPrivate()
	if err != nil {
		return nil, false, err
	}
	if !pubOK {
		if err := kf.savePublic(kp); err != nil {
			return nil, false, err
		}
		return kp, false, nil
	}

	pub, err := LoadPublicKey(kf.PublicPath)
	if err != nil {
		return nil, false, err
	}
	if !pub.Equal(kp.Public) {
		return nil, false, fmt.Errorf("%w: %s", ErrKeyMismatch, kf.PublicPath)
	}
	return kp, false, nil
}

// Save writes both halves of kp, private key first.
func (kf KeyFiles) Save(kp *crypto.KeyPair) error {
	privPEM, err := crypto.EncodePrivateKeyPEM(kp.Private)
	if err != nil {
		return err
	}
	defer memzero.Zero(privPEM)

	out := privPEM
	if kf.Passphrase != "" {
		N, r, p := scryptParamsDefault()
		blob, err := seal(kf.Passphrase, privPEM, N, r, p)
		if err != nil {
			return fmt.Errorf("store: sealing private key: %w", err)
		}
		out = pem.EncodeToMemory(&pem.Block{Type: sealedPEMType, Bytes: blob})
	}
	if err := WriteFile(kf.PrivatePath, out, privateKeyMode); err != nil {
		return fmt.Errorf("store: writing private key: %w", err)
	}
	return kf.savePublic(kp)
}

func (kf KeyFiles) savePublic(kp *crypto.KeyPair) error {
	pubPEM, err := crypto.EncodePublicKeyPEM(kp.Public)
	if err != nil {
		return err
	}
	if err := WriteFile(kf.PublicPath, pubPEM, publicKeyMode); err != nil {
		return fmt.Errorf("store: writing public key: %w", err)
	}
	return nil
}

func (kf KeyFiles) loadPrivate() (*crypto.KeyPair, error) {
	raw, err := readFile(kf.PrivatePath)
	if err != nil {
		return nil, err
	}

	if block, _ := pem.Decode(raw); block != nil && block.Type == sealedPEMType {
		if kf.Passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		opened, err := unseal(kf.Passphrase, block.Bytes)
		if err != nil {
			return nil, err
		}
		defer memzero.Zero(opened)
		raw = opened
	}

	priv, err := crypto.ParsePrivateKeyPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", kf.PrivatePath, err)
	}
	return crypto.NewKeyPair(priv), nil
}
