// Package handshake implements both sides of the chat login exchange.
//
// Contents:
//   - Server: the server state machine. It collects the client's public
//     key, decrypts the nickname and password, and admits the client.
//   - Client: the mirror image, which answers each server token in order.
//   - Password: the server password held in a memguard enclave.
//
// Every step is one line written and one line read over a wire.Conn.
package handshake
