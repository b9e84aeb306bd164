package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"gopkg.in/op/go-logging.v1"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/instrument"
	"securechat/internal/log"
	"securechat/internal/protocol/handshake"
	"securechat/internal/registry"
	"securechat/internal/worker"
)

// HandshakeHeadroom is the number of dispatch slots beyond MaxClients
// reserved for connections that are still logging in.
const HandshakeHeadroom = 16

// Config is everything a Server needs. Zero timeouts are disabled.
type Config struct {
	Address  string
	KeyPair  *crypto.KeyPair
	Password *handshake.Password

	MaxClients int
	MaxWorkers int

	// TLS wraps accepted connections when non-nil.
	TLS *tls.Config

	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration

	LogBackend *log.Backend
}

func (cfg *Config) validate() error {
	switch {
	case cfg.KeyPair == nil:
		return errors.New("server: no key pair")
	case cfg.Password == nil:
		return errors.New("server: no password")
	case cfg.MaxClients < 1:
		return fmt.Errorf("server: MaxClients %d must be positive", cfg.MaxClients)
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = cfg.MaxClients + HandshakeHeadroom
	}
	if cfg.MaxWorkers < cfg.MaxClients {
		return fmt.Errorf("server: MaxWorkers %d is below MaxClients %d", cfg.MaxWorkers, cfg.MaxClients)
	}
	return nil
}

// Server is a running chat server.
type Server struct {
	worker.Worker

	cfg     Config
	log     *logging.Logger
	backend *log.Backend

	ln    net.Listener
	reg   *registry.Registry
	sem   *semaphore.Weighted
	bcast *Broadcaster

	lastID atomic.Uint64

	mu       sync.Mutex
	halting  bool
	sessions map[domain.ConnID]*session
	sessWg   sync.WaitGroup

	startOnce sync.Once
	haltOnce  sync.Once
	haltedCh  chan struct{}
}

// New binds the listener. It does not accept until Start is called.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LogBackend == nil {
		b, err := log.New("", "ERROR", true)
		if err != nil {
			return nil, err
		}
		cfg.LogBackend = b
	}

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("server: %w: %w", domain.ErrConnection, err)
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.LogBackend.GetLogger("server"),
		backend:  cfg.LogBackend,
		ln:       ln,
		reg:      registry.New(cfg.MaxClients),
		sem:      semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		sessions: make(map[domain.ConnID]*session),
		haltedCh: make(chan struct{}),
	}
	s.bcast = NewBroadcaster(s.reg, cfg.LogBackend.GetLogger("broadcast"), s.scheduleEvict)
	return s, nil
}

// Start launches the accept loop.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		s.logStartup()
		s.Go(s.acceptWorker)
	})
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Registry exposes the connection registry for inspection.
func (s *Server) Registry() domain.Registry { return s.reg }

// Broadcaster returns the server's broadcast engine.
func (s *Server) Broadcaster() domain.Broadcaster { return s.bcast }

// Wait blocks until Shutdown has completed.
func (s *Server) Wait() { <-s.haltedCh }

// Shutdown stops accepting, interrupts every session and waits up to
// ShutdownTimeout for them to finish before force-closing the rest.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() {
		s.log.Notice("Shutting down")

		s.mu.Lock()
		s.halting = true
		s.mu.Unlock()

		s.Signal()
		_ = s.ln.Close()
		s.forEachSession(func(sess *session) { sess.interrupt() })

		if !s.waitSessions(s.cfg.ShutdownTimeout) {
			s.log.Warning("Sessions still running after shutdown timeout, closing connections")
			s.forEachSession(func(sess *session) { sess.forceClose() })
		}
		s.sessWg.Wait()
		s.Worker.Wait()

		s.log.Notice("Shutdown complete")
		close(s.haltedCh)
	})
}

func (s *Server) waitSessions(d time.Duration) bool {
	if d <= 0 {
		s.sessWg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		s.sessWg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Server) forEachSession(fn func(*session)) {
	s.mu.Lock()
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.Unlock()

	for _, sess := range list {
		fn(sess)
	}
}

// spawn starts fn under the session group unless the server is halting.
func (s *Server) spawn(sess *session, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halting {
		return false
	}
	s.sessions[sess.id] = sess
	s.sessWg.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			s.sessWg.Done()
		}()
		fn()
	}()
	return true
}

// scheduleEvict removes failed recipients off the broadcasting goroutine.
func (s *Server) scheduleEvict(ids []domain.ConnID) {
	s.mu.Lock()
	halting := s.halting
	if !halting {
		s.sessWg.Add(1)
	}
	s.mu.Unlock()

	if halting {
		for _, id := range ids {
			s.evict(id)
		}
		return
	}
	go func() {
		defer s.sessWg.Done()
		for _, id := range ids {
			s.evict(id)
		}
	}()
}

// evict unregisters id. Only the caller that actually removed the entry
// closes the connection and announces the departure.
func (s *Server) evict(id domain.ConnID) {
	e, ok := s.reg.Unregister(id)
	if !ok {
		return
	}
	_ = e.Conn.Close()
	instrument.ClientLeft()
	s.log.Noticef("%s (conn %s) left, %d/%d connected", e.Name, id, s.reg.Len(), s.reg.Cap())
	s.bcast.Broadcast(leaveMessage(e.Name), id)
}

func (s *Server) logStartup() {
	addr := s.ln.Addr().(*net.TCPAddr)
	s.log.Noticef("Chat server listening on %v (TLS: %t)", addr, s.cfg.TLS != nil)
	if addr.IP.IsUnspecified() {
		if ip := localIP(); ip != "" {
			s.log.Noticef("Connect from other devices at %s:%d", ip, addr.Port)
		}
	}
	s.log.Noticef("Max clients: %d, dispatch slots: %d", s.cfg.MaxClients, s.cfg.MaxWorkers)
	if s.cfg.HandshakeTimeout == 0 || s.cfg.IdleTimeout == 0 {
		s.log.Info("Handshake or idle timeout disabled; idle peers hold their slot indefinitely")
	}
}

// localIP finds the preferred outbound address. Dialing UDP sends no
// packets.
func localIP() string {
	c, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer c.Close()
	if a, ok := c.LocalAddr().(*net.UDPAddr); ok {
		return a.IP.String()
	}
	return ""
}

func joinMessage(name string) string { return "* " + name + " joined the chat" }
func leaveMessage(name string) string { return "* " + name + " left the chat" }
func chatMessage(name, text string) string {
	return name + ": " + text
}
