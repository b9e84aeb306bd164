// Package domain defines core data models and interfaces shared across the
// chat server and client. It contains plain types (registry entries, the
// connection contract) and the error taxonomy only.
package domain
