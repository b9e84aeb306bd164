// Package server implements the encrypted chat server.
//
// Contents:
//   - Server: owns the listener, the registry and the session workers.
//   - The accept loop, which takes a dispatch slot from a weighted
//     semaphore before every Accept.
//   - Session workers: the optional TLS handshake, the login exchange and
//     the chat message loop of one connection.
//   - Broadcaster: re-encrypts every outgoing line for each recipient.
//
// The registry is the only state shared between sessions and no lock is
// held across network I/O.
package server
