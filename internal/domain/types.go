package domain

import (
	"crypto/rsa"
	"strconv"
	"time"
)

// ConnID identifies one accepted connection for its whole lifetime. IDs are
// handed out in accept order and never reused within a server process.
type ConnID uint64

// String returns the decimal form of the identifier.
func (id ConnID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Conn is the write side of a live connection as seen by the broadcast
// engine. Send writes exactly one newline-terminated record.
type Conn interface {
	Send(line string) error
	Close() error
}

// ConnectionEntry is an authenticated connection held by the registry.
type ConnectionEntry struct {
	ID        ConnID
	Name      string
	PublicKey *rsa.PublicKey
	Conn      Conn
	Remote    string
	JoinedAt  time.Time
}
