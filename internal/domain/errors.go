package domain

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can classify a
// failure with errors.Is without caring about the underlying cause.
var (
	// ErrConnection is a transport failure; only the affected connection is closed.
	ErrConnection = errors.New("connection error")

	// ErrHandshake is a malformed or out-of-sequence handshake step.
	ErrHandshake = errors.New("handshake error")

	// ErrAuthentication is a credential mismatch.
	ErrAuthentication = errors.New("authentication failed")

	// ErrCapacity means the registry is full.
	ErrCapacity = errors.New("server full")

	// ErrCrypto covers key format, encryption and decryption failures.
	ErrCrypto = errors.New("crypto error")

	// ErrIntegrity is a digest mismatch on a single chat message.
	ErrIntegrity = errors.New("integrity check failed")
)
