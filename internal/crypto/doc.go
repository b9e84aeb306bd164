// Package crypto exposes the asymmetric primitives used by the chat server
// and client.
//
// Contents
//
//   - RSA key pair generation (GenerateKeyPair)
//   - RSA-OAEP encryption and decryption with SHA-256 for both the digest and
//     MGF1 (Encrypt, Decrypt and their base64 wire forms)
//   - PEM encoding and parsing of public and private keys
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Best-effort zeroing of decrypted secrets (Wipe)
//
// # Notes
//
// Decrypt never reports why a ciphertext was rejected; every failure maps to
// ErrDecryption. OAEP caps the plaintext size at MaxPlaintextSize(pub) bytes
// (190 for a 2048-bit key), so chat messages must stay short.
package crypto
