package handshake

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol/wire"
)

const (
	// MinPeerKeyBits is the smallest client RSA modulus accepted.
	MinPeerKeyBits = 2048

	// MaxNicknameLength bounds a nickname in bytes.
	MaxNicknameLength = 64
)

// State is the position of a Server in the login exchange.
type State int

const (
	StateInit State = iota
	StateAwaitClientPublicKey
	StateAwaitNickname
	StateAwaitPassword
	StateDecision
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitClientPublicKey:
		return "await-client-public-key"
	case StateAwaitNickname:
		return "await-nickname"
	case StateAwaitPassword:
		return "await-password"
	case StateDecision:
		return "decision"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// AdmitFunc registers an authenticated client. It runs with the
// connection's write lock held, so it must not write to the connection.
// Returning an error wrapping domain.ErrCapacity rejects the client as
// SERVIDOR_LLENO.
type AdmitFunc func(name string, pub *rsa.PublicKey) error

// Result is what a successful handshake learned about the client.
type Result struct {
	Name      string
	PublicKey *rsa.PublicKey
}

// Server drives the server side of one handshake. A Server is single-use.
type Server struct {
	key      *crypto.KeyPair
	password *Password
	admit    AdmitFunc

	state  State
	result Result
}

// NewServer prepares a handshake that decrypts with key, checks password
// and calls admit on success.
func NewServer(key *crypto.KeyPair, password *Password, admit AdmitFunc) *Server {
	return &Server{
		key:      key,
		password: password,
		admit:    admit,
		state:    StateInit,
	}
}

// State returns the current state.
func (s *Server) State() State { return s.state }

// Run performs the exchange on c. On any failure before the decision it
// sends AUTH_FAILED at best effort; the caller closes the connection.
// Result is valid only when err is nil.
func (s *Server) Run(c Conn) (Result, error) {
	if s.state != StateInit {
		return Result{}, fmt.Errorf("%w: handshake already used", domain.ErrHandshake)
	}

	err := s.collect(c)
	if err != nil {
		s.state = StateRejected
		_ = c.Send(wire.TokenAuthFailed)
		return Result{}, err
	}
	return s.decide(c)
}

func (s *Server) collect(c Conn) error {
	if err := c.Send(wire.TokenPublicKeyReady); err != nil {
		return wrap("announce", err)
	}

	s.state = StateAwaitClientPublicKey
	pub, err := s.readPublicKey(c)
	if err != nil {
		return err
	}
	s.result.PublicKey = pub

	s.state = StateAwaitNickname
	nick, err := s.prompt(c, wire.TokenNick)
	if err != nil {
		return err
	}
	name, err := ValidateNickname(string(nick))
	crypto.Wipe(nick)
	if err != nil {
		return err
	}
	s.result.Name = name

	s.state = StateAwaitPassword
	pw, err := s.prompt(c, wire.TokenPassword)
	if err != nil {
		return err
	}
	ok := s.password.Equal(pw)
	crypto.Wipe(pw)

	s.state = StateDecision
	if !ok {
		return fmt.Errorf("%w: password mismatch for %q", domain.ErrAuthentication, name)
	}
	return nil
}

func (s *Server) readPublicKey(c Conn) (*rsa.PublicKey, error) {
	if err := c.Send(wire.TokenClientPublicKey); err != nil {
		return nil, wrap("request public key", err)
	}
	line, err := c.ReadLine()
	if err != nil {
		return nil, wrap("read public key", err)
	}
	raw, err := crypto.FromB64(line)
	if err != nil {
		return nil, wrap("decode public key", err)
	}
	pub, err := crypto.ParsePublicKeyPEM(raw)
	if err != nil {
		return nil, wrap("parse public key", err)
	}
	if pub.N.BitLen() < MinPeerKeyBits {
		return nil, fmt.Errorf("%w: client key is %d bits", domain.ErrHandshake, pub.N.BitLen())
	}
	return pub, nil
}

// prompt sends token and decrypts the reply.
func (s *Server) prompt(c Conn, token string) ([]byte, error) {
	if err := c.Send(token); err != nil {
		return nil, wrap("send "+token, err)
	}
	line, err := c.ReadLine()
	if err != nil {
		return nil, wrap("read "+token, err)
	}
	pt, err := crypto.DecryptString(s.key.Private, line)
	if err != nil {
		return nil, wrap("decrypt "+token, err)
	}
	return pt, nil
}

func (s *Server) decide(c Conn) (Result, error) {
	err := c.WithWriteLock(func(send func(string) error) error {
		if err := s.admit(s.result.Name, s.result.PublicKey); err != nil {
			if errors.Is(err, domain.ErrCapacity) {
				_ = send(wire.TokenServerFull)
			} else {
				_ = send(wire.TokenAuthFailed)
			}
			return err
		}
		return send(wire.TokenAuthSuccess)
	})
	if err != nil {
		s.state = StateRejected
		return Result{}, err
	}
	s.state = StateAuthenticated
	return s.result, nil
}

// ValidateNickname trims raw and checks it is printable UTF-8 of at most
// MaxNicknameLength bytes.
func ValidateNickname(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: nickname is not valid UTF-8", domain.ErrHandshake)
	}
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty nickname", domain.ErrHandshake)
	case len(name) > MaxNicknameLength:
		return "", fmt.Errorf("%w: nickname longer than %d bytes", domain.ErrHandshake, MaxNicknameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: nickname contains control characters", domain.ErrHandshake)
		}
	}
	return name, nil
}
