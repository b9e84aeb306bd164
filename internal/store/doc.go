// Package store persists the chat server's RSA key pair on disk.
//
// Key files are PEM: the private key as PKCS#8 (mode 0600) and the public
// key as PKIX (mode 0644). When a passphrase is configured the private key
// PEM is sealed with scrypt and ChaCha20-Poly1305 and wrapped in an
// "ENCRYPTED CHAT PRIVATE KEY" block. Every write goes through a temp file
// and an atomic rename.
//
// The package includes:
//   - KeyFiles: load-or-generate for the server key pair
//   - WriteFile: the atomic writer, also used for TLS material
package store
