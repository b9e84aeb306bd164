package store

import (
	"crypto/rsa"
	"fmt"
	"os"

	"securechat/internal/crypto"
)

// LoadPublicKey reads a PEM public key, as handed to clients.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := crypto.ParsePublicKeyPEM(b)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	return pub, nil
}
