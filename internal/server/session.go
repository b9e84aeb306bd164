package server

import (
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/op/go-logging.v1"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/protocol/envelope"
	"securechat/internal/protocol/handshake"
	"securechat/internal/protocol/integrity"
	"securechat/internal/protocol/wire"
)

// session is the worker for one accepted connection.
type session struct {
	s   *Server
	id  domain.ConnID
	raw net.Conn
	log *logging.Logger

	// Set by the session goroutine only.
	wc       *wire.Conn
	name     string
	admitted bool
}

func newSession(s *Server, id domain.ConnID, raw net.Conn) *session {
	return &session{
		s:   s,
		id:  id,
		raw: raw,
		log: s.backend.GetLogger("session:" + id.String()),
	}
}

func (sess *session) run() {
	defer sess.cleanup()

	wc, err := sess.establish()
	if err != nil {
		sess.log.Noticef("TLS handshake with %v failed: %v", sess.raw.RemoteAddr(), err)
		instrument.Handshake("tls_failed")
		return
	}

	sess.wc = wc

	if !sess.login(wc) {
		return
	}
	sess.s.bcast.Broadcast(joinMessage(sess.name), sess.id)
	sess.messageLoop(wc)
}

// establish runs the optional TLS handshake inside the session's own slot.
func (sess *session) establish() (*wire.Conn, error) {
	cfg := sess.s.cfg
	if cfg.TLS == nil {
		return wire.NewConn(sess.raw), nil
	}

	tc := tls.Server(sess.raw, cfg.TLS)
	if cfg.HandshakeTimeout > 0 {
		_ = sess.raw.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	}
	if err := tc.Handshake(); err != nil {
		return nil, err
	}
	_ = sess.raw.SetDeadline(time.Time{})
	return wire.NewConn(tc), nil
}

func (sess *session) login(wc *wire.Conn) bool {
	cfg := sess.s.cfg
	_ = wc.SetDeadline(cfg.HandshakeTimeout)

	hs := handshake.NewServer(cfg.KeyPair, cfg.Password, func(name string, pub *rsa.PublicKey) error {
		return sess.admit(wc, name, pub)
	})
	res, err := hs.Run(wc)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCapacity):
			sess.log.Warningf("Rejected %v: server full (%d/%d)", wc.RemoteAddr(), sess.s.reg.Len(), sess.s.reg.Cap())
			instrument.Handshake("full")
		case errors.Is(err, domain.ErrAuthentication):
			sess.log.Noticef("Authentication failed from %v", wc.RemoteAddr())
			instrument.Handshake("auth_failed")
		default:
			sess.log.Noticef("Handshake with %v failed in state %v: %v", wc.RemoteAddr(), hs.State(), err)
			instrument.Handshake("error")
		}
		return false
	}

	_ = wc.SetDeadline(0)
	instrument.Handshake("success")
	sess.log.Noticef("%s joined from %v, %d/%d connected", res.Name, wc.RemoteAddr(), sess.s.reg.Len(), sess.s.reg.Cap())
	return true
}

// admit runs under the connection's write lock, so AUTH_SUCCESS reaches the
// peer before any broadcast can.
func (sess *session) admit(wc *wire.Conn, name string, pub *rsa.PublicKey) error {
	reg := sess.s.reg
	if reg.NameInUse(name) {
		sess.log.Warningf("Nickname %q is already in use by another connection", name)
	}
	err := reg.Register(domain.ConnectionEntry{
		ID:        sess.id,
		Name:      name,
		PublicKey: pub,
		Conn:      wc,
		Remote:    wc.RemoteAddr(),
		JoinedAt:  time.Now(),
	})
	if err != nil {
		return err
	}
	instrument.ClientJoined()

	sess.name = name
	sess.admitted = true
	return nil
}

func (sess *session) messageLoop(wc *wire.Conn) {
	for {
		select {
		case <-sess.s.HaltCh():
			return
		default:
		}

		_ = wc.SetReadTimeout(sess.s.cfg.IdleTimeout)
		line, err := wc.ReadLine()
		if err != nil {
			sess.log.Debugf("Read from %s ended: %v", sess.name, err)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		text, err := sess.open(line)
		if err != nil {
			continue
		}
		instrument.MessageReceived()
		sess.log.Debugf("Message from %s (%d bytes)", sess.name, len(text))
		sess.s.bcast.Broadcast(chatMessage(sess.name, text), sess.id)
	}
}

// open parses, decrypts and verifies one chat payload. Failures are logged
// and counted; the connection stays open.
func (sess *session) open(line string) (string, error) {
	env, err := envelope.Parse(line)
	if err != nil {
		sess.log.Warningf("Dropping malformed message from %s: %v", sess.name, err)
		instrument.MessageDropped(instrument.DropMalformed)
		return "", err
	}

	pt, err := crypto.DecryptString(sess.s.cfg.KeyPair.Private, env.Cipher)
	if err != nil {
		sess.log.Warningf("Dropping undecryptable %v message from %s", env.Format, sess.name)
		instrument.MessageDropped(instrument.DropDecrypt)
		return "", err
	}

	if env.Digests.Empty() {
		sess.log.Debugf("Message from %s carries no digest, accepted unverified", sess.name)
	} else if err := integrity.Verify(pt, env.Digests); err != nil {
		sess.log.Warningf("Dropping message from %s: %v", sess.name, err)
		sess.log.Debugf("Carried sha256=%s md5=%s", env.Digests.SHA256, env.Digests.MD5)
		instrument.MessageDropped(instrument.DropIntegrity)
		return "", err
	}

	if !utf8.Valid(pt) {
		sess.log.Warningf("Dropping non UTF-8 message from %s", sess.name)
		instrument.MessageDropped(instrument.DropMalformed)
		return "", fmt.Errorf("%w: message is not UTF-8", envelope.ErrMalformed)
	}
	return string(pt), nil
}

func (sess *session) cleanup() {
	if sess.admitted {
		sess.s.evict(sess.id)
	}
	if sess.wc != nil {
		_ = sess.wc.Close()
	} else {
		_ = sess.raw.Close()
	}
}

// interrupt unblocks a pending read so the session notices shutdown.
func (sess *session) interrupt() {
	_ = sess.raw.SetReadDeadline(time.Now())
}

func (sess *session) forceClose() {
	_ = sess.raw.Close()
}
