// Package commands defines the chatserver CLI.
//
// Commands
//
//   - (root)       Run the chat server until SIGINT or SIGTERM
//   - gencert      Write a self-signed TLS certificate and key
//   - genkeys      Create (or load) the server RSA key pair and exit
//   - fingerprint  Print the server public key fingerprint, optionally as QR
//
// # Configuration
//
// Settings are layered: built-in defaults, then the TOML file given with
// --config, then CHAT_* environment variables, then command line flags.
// SIGHUP reopens the log file.
package commands
