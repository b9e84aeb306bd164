package handshake

import (
	"crypto/rsa"
	"fmt"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol/wire"
)

// Client answers the server's login prompts.
type Client struct {
	// Own is the client's key pair; the server encrypts broadcasts to it.
	Own *crypto.KeyPair
	// ServerKey encrypts the nickname and password.
	ServerKey *rsa.PublicKey
	Nickname  string
	Password  []byte
}

// Run performs the exchange. AUTH_FAILED maps to domain.ErrAuthentication
// and SERVIDOR_LLENO to domain.ErrCapacity.
func (cl *Client) Run(c Conn) error {
	if err := expect(c, wire.TokenPublicKeyReady); err != nil {
		return err
	}

	if err := expect(c, wire.TokenClientPublicKey); err != nil {
		return err
	}
	pemBytes, err := crypto.EncodePublicKeyPEM(cl.Own.Public)
	if err != nil {
		return wrap("encode public key", err)
	}
	if err := c.Send(crypto.B64(pemBytes)); err != nil {
		return wrap("send public key", err)
	}

	if err := cl.answer(c, wire.TokenNick, []byte(cl.Nickname)); err != nil {
		return err
	}
	if err := cl.answer(c, wire.TokenPassword, cl.Password); err != nil {
		return err
	}

	verdict, err := c.ReadLine()
	if err != nil {
		return wrap("read verdict", err)
	}
	switch verdict {
	case wire.TokenAuthSuccess:
		return nil
	case wire.TokenAuthFailed:
		return domain.ErrAuthentication
	case wire.TokenServerFull:
		return domain.ErrCapacity
	}
	return fmt.Errorf("%w: unexpected verdict %q", domain.ErrHandshake, truncate(verdict))
}

func (cl *Client) answer(c Conn, token string, plaintext []byte) error {
	got, err := c.ReadLine()
	if err != nil {
		return wrap("waiting for "+token, err)
	}
	switch {
	case got == wire.TokenAuthFailed:
		return domain.ErrAuthentication
	case got != token:
		return fmt.Errorf("%w: expected %s, got %q", domain.ErrHandshake, token, truncate(got))
	}
	ct, err := crypto.Encrypt(cl.ServerKey, plaintext)
	if err != nil {
		return wrap("encrypt "+token, err)
	}
	if err := c.Send(crypto.B64(ct)); err != nil {
		return wrap("send "+token, err)
	}
	return nil
}
