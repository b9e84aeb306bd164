package server

import (
	"context"
	"errors"
	"net"
	"time"

	"securechat/internal/domain"
	"securechat/internal/instrument"
)

const (
	keepAliveInterval = 3 * time.Minute
	maxAcceptBackoff  = time.Second
)

func (s *Server) acceptWorker() {
	addr := s.ln.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		_ = s.ln.Close() // Usually redundant, but harmless.
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.HaltCh():
			cancel()
		case <-ctx.Done():
		}
	}()

	var backoff time.Duration
	for {
		// Take a slot first: a saturated pool leaves peers in the backlog.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		conn, err := s.ln.Accept()
		if err != nil {
			s.sem.Release(1)
			select {
			case <-s.HaltCh():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) || !isTemporary(err) {
				s.log.Errorf("accept failure: %v", err)
				return
			}
			backoff = nextBackoff(backoff)
			s.log.Warningf("accept error: %v; retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-s.HaltCh():
				return
			}
			continue
		}
		backoff = 0

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(keepAliveInterval)
		}

		instrument.Accepted()
		s.onNewConn(conn)
	}

	// NOTREACHED
}

func (s *Server) onNewConn(conn net.Conn) {
	id := domain.ConnID(s.lastID.Add(1))
	sess := newSession(s, id, conn)
	s.log.Debugf("Accepted new connection %s from %v", id, conn.RemoteAddr())

	ok := s.spawn(sess, func() {
		defer s.sem.Release(1)
		sess.run()
	})
	if !ok {
		s.sem.Release(1)
		_ = conn.Close()
	}
}

func isTemporary(err error) bool {
	var ne interface{ Temporary() bool }
	if errors.As(err, &ne) && ne.Temporary() {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}
