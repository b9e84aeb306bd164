package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"securechat/internal/domain"
)

// MaxLineLength bounds a single incoming line, terminator excluded.
const MaxLineLength = 64 * 1024

// ErrLineTooLong is returned by ReadLine when a peer sends more than
// MaxLineLength bytes without a newline.
var ErrLineTooLong = fmt.Errorf("%w: line exceeds %d bytes", domain.ErrConnection, MaxLineLength)

// Conn frames a net.Conn into lines. Reads must come from one goroutine;
// writes may come from any number of them.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	wmu    sync.Mutex
	closed bool
}

var _ domain.Conn = (*Conn)(nil)

// NewConn wraps nc.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		r:  bufio.NewReaderSize(nc, 4096),
	}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
func (c *Conn) ReadLine() (string, error) {
	var buf []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		if len(buf)+len(chunk) > MaxLineLength+2 {
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			buf = bytes.TrimSuffix(buf, []byte{'\n'})
			buf = bytes.TrimSuffix(buf, []byte{'\r'})
			if len(buf) > MaxLineLength {
				return "", ErrLineTooLong
			}
			return string(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return "", fmt.Errorf("%w: truncated line: %w", domain.ErrConnection, io.ErrUnexpectedEOF)
		default:
			return "", fmt.Errorf("%w: %w", domain.ErrConnection, err)
		}
	}
}

// Send writes line followed by "\n" as one record. Concurrent calls never
// interleave.
func (c *Conn) Send(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(line)
}

// WithWriteLock runs fn while holding the write lock. send writes a line
// without re-acquiring it, so fn can make a state change and emit the
// matching token before any other writer gets the connection.
func (c *Conn) WithWriteLock(fn func(send func(string) error) error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return fn(c.writeLocked)
}

func (c *Conn) writeLocked(line string) error {
	if c.closed {
		return fmt.Errorf("%w: %w", domain.ErrConnection, net.ErrClosed)
	}
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("%w: line contains a terminator", domain.ErrConnection)
	}
	b := make([]byte, 0, len(line)+1)
	b = append(b, line...)
	b = append(b, '\n')
	if _, err := c.nc.Write(b); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return nil
}

// Close closes the underlying connection. Later writes fail fast.
func (c *Conn) Close() error {
	c.wmu.Lock()
	c.closed = true
	c.wmu.Unlock()
	return c.nc.Close()
}

// SetReadTimeout arms a read deadline d from now. A zero d clears it.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return c.nc.SetReadDeadline(time.Time{})
	}
	return c.nc.SetReadDeadline(time.Now().Add(d))
}

// Interrupt unblocks a pending ReadLine.
func (c *Conn) Interrupt() error { return c.nc.SetReadDeadline(time.Now()) }

// SetDeadline sets both deadlines; a zero d clears them.
func (c *Conn) SetDeadline(d time.Duration) error {
	if d <= 0 {
		return c.nc.SetDeadline(time.Time{})
	}
	return c.nc.SetDeadline(time.Now().Add(d))
}

// RemoteAddr returns the peer address as text.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// NetConn returns the wrapped connection.
func (c *Conn) NetConn() net.Conn { return c.nc }
