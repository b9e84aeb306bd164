// Package wire implements the newline-framed transport shared by the chat
// server and client.
//
// Contents:
//   - Control tokens exchanged during the handshake.
//   - Conn: a line reader bounded by MaxLineLength and a mutex-serialized
//     line writer over any net.Conn (plain TCP or TLS).
package wire
