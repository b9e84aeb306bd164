package handshake

import (
	"errors"
	"fmt"

	"securechat/internal/domain"
	"securechat/internal/protocol/wire"
)

// Conn is the subset of *wire.Conn the handshake uses.
type Conn interface {
	ReadLine() (string, error)
	Send(line string) error
	WithWriteLock(fn func(send func(string) error) error) error
}

var _ Conn = (*wire.Conn)(nil)

// expect reads one line and checks it is want.
func expect(c Conn, want string) error {
	got, err := c.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %w", domain.ErrHandshake, want, err)
	}
	if got != want {
		return fmt.Errorf("%w: expected %s, got %q", domain.ErrHandshake, want, truncate(got))
	}
	return nil
}

func truncate(s string) string {
	const n = 32
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// wrap tags err as a handshake failure unless it already carries a kind.
func wrap(step string, err error) error {
	if errors.Is(err, domain.ErrHandshake) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrHandshake, step, err)
}
