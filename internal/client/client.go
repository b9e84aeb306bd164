// Package client implements the client side of the chat protocol. It is
// used by the chatclient binary and by the server's integration tests.
package client

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol/envelope"
	"securechat/internal/protocol/handshake"
	"securechat/internal/protocol/integrity"
	"securechat/internal/protocol/wire"
)

// ErrMessageTooLong is returned by Send for text that cannot be encrypted
// to the server, or that the server could not relay once prefixed with the
// nickname.
var ErrMessageTooLong = errors.New("client: message too long")

// Config describes one connection.
type Config struct {
	Address   string
	ServerKey *rsa.PublicKey
	Nickname  string
	Password  []byte

	// TLS enables TLS when non-nil. An empty ServerName is taken from
	// Address.
	TLS *tls.Config

	// Own is the client key pair. A fresh 2048-bit pair is generated when
	// nil.
	Own *crypto.KeyPair

	// DialTimeout bounds the TCP and TLS connect.
	DialTimeout time.Duration
}

// Client is an authenticated chat connection.
type Client struct {
	wc        *wire.Conn
	own       *crypto.KeyPair
	serverKey *rsa.PublicKey
	nickname  string
}

// Dial connects, logs in and returns the authenticated client. A rejected
// login wraps domain.ErrAuthentication or domain.ErrCapacity.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ServerKey == nil {
		return nil, errors.New("client: no server public key")
	}
	own := cfg.Own
	if own == nil {
		kp, err := crypto.GenerateKeyPair(crypto.DefaultKeyBits)
		if err != nil {
			return nil, err
		}
		own = kp
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}

	if cfg.TLS != nil {
		tcfg := cfg.TLS.Clone()
		if tcfg.ServerName == "" {
			if host, _, err := net.SplitHostPort(cfg.Address); err == nil {
				tcfg.ServerName = host
			}
		}
		tc := tls.Client(nc, tcfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = nc.Close()
			return nil, fmt.Errorf("%w: tls: %w", domain.ErrConnection, err)
		}
		nc = tc
	}

	c := &Client{
		wc:        wire.NewConn(nc),
		own:       own,
		serverKey: cfg.ServerKey,
		nickname:  cfg.Nickname,
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(dl)
	}
	hs := &handshake.Client{
		Own:       own,
		ServerKey: cfg.ServerKey,
		Nickname:  cfg.Nickname,
		Password:  cfg.Password,
	}
	if err := hs.Run(c.wc); err != nil {
		_ = c.wc.Close()
		return nil, err
	}
	_ = nc.SetDeadline(time.Time{})
	return c, nil
}

// Nickname returns the name the client logged in with.
func (c *Client) Nickname() string { return c.nickname }

// MaxMessageLength is the longest text, in bytes, the server can both
// decrypt and relay back as "nick: text".
func (c *Client) MaxMessageLength() int {
	toServer := crypto.MaxPlaintextSize(c.serverKey)
	relayed := crypto.MaxPlaintextSize(c.own.Public) - len(c.nickname) - len(": ")
	return min(toServer, relayed)
}

// Send encrypts text to the server and sends it with its SHA-256 and MD5
// digests in the pipe layout.
func (c *Client) Send(text string) error {
	return c.SendFormat(envelope.FormatPipe, text)
}

// SendFormat is Send with an explicit payload layout.
func (c *Client) SendFormat(f envelope.Format, text string) error {
	if len(text) > c.MaxMessageLength() {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(text), c.MaxMessageLength())
	}
	cipher, err := crypto.EncryptString(c.serverKey, text)
	if err != nil {
		return err
	}
	e := envelope.Envelope{Format: f, Cipher: cipher}
	if f != envelope.FormatBare {
		e.Digests = integrity.Compute([]byte(text))
	}
	line, err := envelope.Build(e)
	if err != nil {
		return err
	}
	return c.wc.Send(line)
}

// SendRaw writes line unchanged.
func (c *Client) SendRaw(line string) error { return c.wc.Send(line) }

// Receive blocks for the next broadcast and returns its plaintext.
func (c *Client) Receive() (string, error) {
	line, err := c.wc.ReadLine()
	if err != nil {
		return "", err
	}
	pt, err := crypto.DecryptString(c.own.Private, line)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// SetReadTimeout bounds the next Receive; zero clears it.
func (c *Client) SetReadTimeout(d time.Duration) error { return c.wc.SetReadTimeout(d) }

// Close closes the connection.
func (c *Client) Close() error { return c.wc.Close() }
