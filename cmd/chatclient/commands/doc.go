// Package commands defines the chatclient CLI.
//
// The root command connects to a chat server, logs in and relays lines
// between the terminal and the room until stdin closes, the user types
// /quit, or the server hangs up. Missing connection details are prompted
// for; the password is always read without echo.
//
// Exit codes
//
//   - 0  normal exit
//   - 1  any other error
//   - 2  the server answered AUTH_FAILED
//   - 3  the server answered SERVIDOR_LLENO
package commands
