// Package app wires the chat server's dependencies for the CLI.
//
// It builds the logging backend, key material, TLS configuration, metrics
// listener and server from a config.Config, exposing them via the Wire
// struct, and drives their lifecycle through App.
package app
