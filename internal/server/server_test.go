package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"securechat/internal/certs"
	"securechat/internal/client"
	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/log"
	"securechat/internal/protocol/envelope"
	"securechat/internal/protocol/handshake"
	"securechat/internal/protocol/integrity"
)

const testPassword = "secreto"

var (
	keysOnce   sync.Once
	serverKeys *crypto.KeyPair
	clientKeys []*crypto.KeyPair
)

func testKeys(t *testing.T) (*crypto.KeyPair, []*crypto.KeyPair) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if serverKeys, err = crypto.GenerateKeyPair(2048); err != nil {
			panic(err)
		}
		for i := 0; i < 3; i++ {
			kp, err := crypto.GenerateKeyPair(2048)
			if err != nil {
				panic(err)
			}
			clientKeys = append(clientKeys, kp)
		}
	})
	return serverKeys, clientKeys
}

func newTestServer(t *testing.T, maxClients int, tlsCfg *tls.Config) *Server {
	t.Helper()
	sk, _ := testKeys(t)
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	s, err := New(Config{
		Address:         "127.0.0.1:0",
		KeyPair:         sk,
		Password:        handshake.NewPassword([]byte(testPassword)),
		MaxClients:      maxClients,
		TLS:             tlsCfg,
		ShutdownTimeout: 2 * time.Second,
		LogBackend:      backend,
	})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Shutdown)
	return s
}

func dial(t *testing.T, s *Server, idx int, nick, password string, tlsCfg *tls.Config) (*client.Client, error) {
	t.Helper()
	sk, ck := testKeys(t)
	return client.Dial(context.Background(), client.Config{
		Address:     s.Addr().String(),
		ServerKey:   sk.Public,
		Nickname:    nick,
		Password:    []byte(password),
		TLS:         tlsCfg,
		Own:         ck[idx],
		DialTimeout: 10 * time.Second,
	})
}

func mustDial(t *testing.T, s *Server, idx int, nick string) *client.Client {
	t.Helper()
	c, err := dial(t, s, idx, nick, testPassword, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func recv(t *testing.T, c *client.Client) string {
	t.Helper()
	require.NoError(t, c.SetReadTimeout(5*time.Second))
	msg, err := c.Receive()
	require.NoError(t, err)
	return msg
}

func requireSilent(t *testing.T, c *client.Client) {
	t.Helper()
	require.NoError(t, c.SetReadTimeout(300*time.Millisecond))
	msg, err := c.Receive()
	require.Error(t, err, "unexpected message %q", msg)
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "want timeout, got %v", err)
}

func waitLen(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Registry().Len() == n },
		5*time.Second, 10*time.Millisecond)
}

func TestServer_TwoClientsChat(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, 10, nil)

	alice := mustDial(t, s, 0, "alice")
	bob := mustDial(t, s, 1, "bob")

	require.Equal("* bob joined the chat", recv(t, alice))

	require.NoError(bob.Send("hello"))
	require.Equal("bob: hello", recv(t, alice))
	requireSilent(t, bob)

	require.NoError(alice.Send("hola bob"))
	require.Equal("alice: hola bob", recv(t, bob))

	require.NoError(bob.Close())
	require.Equal("* bob left the chat", recv(t, alice))
	waitLen(t, s, 1)
}

func TestServer_WrongPassword(t *testing.T) {
	s := newTestServer(t, 10, nil)
	alice := mustDial(t, s, 0, "alice")

	_, err := dial(t, s, 1, "mallory", "adivina", nil)
	require.ErrorIs(t, err, domain.ErrAuthentication)
	require.Equal(t, 1, s.Registry().Len())
	requireSilent(t, alice)
}

func TestServer_Full(t *testing.T) {
	s := newTestServer(t, 1, nil)
	mustDial(t, s, 0, "alice")

	_, err := dial(t, s, 1, "bob", testPassword, nil)
	require.ErrorIs(t, err, domain.ErrCapacity)
	require.Equal(t, 1, s.Registry().Len())
}

func TestServer_PayloadFormats(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, 10, nil)
	alice := mustDial(t, s, 0, "alice")
	bob := mustDial(t, s, 1, "bob")
	require.Equal("* bob joined the chat", recv(t, alice))

	for _, f := range []envelope.Format{envelope.FormatPipe, envelope.FormatJSON, envelope.FormatBare} {
		require.NoError(bob.SendFormat(f, "via "+f.String()))
		require.Equal("bob: via "+f.String(), recv(t, alice))
	}
}

func TestServer_IntegrityMismatchDropped(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, 10, nil)
	sk, _ := testKeys(t)
	alice := mustDial(t, s, 0, "alice")
	bob := mustDial(t, s, 1, "bob")
	require.Equal("* bob joined the chat", recv(t, alice))

	// Ciphertext of one text, digests of another.
	cipher, err := crypto.EncryptString(sk.Public, "mensaje original")
	require.NoError(err)
	forged := integrity.Compute([]byte("mensaje alterado"))
	line, err := envelope.Build(envelope.Envelope{Format: envelope.FormatPipe, Cipher: cipher, Digests: forged})
	require.NoError(err)
	require.NoError(bob.SendRaw(line))

	// MD5 alone mismatching is also dropped.
	good := integrity.Compute([]byte("mensaje original"))
	line, err = envelope.Build(envelope.Envelope{
		Format:  envelope.FormatJSON,
		Cipher:  cipher,
		Digests: integrity.Digests{SHA256: good.SHA256, MD5: forged.MD5},
	})
	require.NoError(err)
	require.NoError(bob.SendRaw(line))

	// Garbage is dropped too, and the connection survives all of it.
	require.NoError(bob.SendRaw("%%%not-base64%%%|abc"))
	require.NoError(bob.SendRaw("QUJD"))
	require.NoError(bob.Send("still here"))

	require.Equal("bob: still here", recv(t, alice))
	require.Equal(2, s.Registry().Len())
}

func TestServer_TLS(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server_cert.pem")
	keyFile := filepath.Join(dir, "server_key.pem")
	require.NoError(certs.WriteSelfSigned(certFile, keyFile, certs.Options{}))
	srvTLS, err := certs.ServerTLSConfig(certFile, keyFile)
	require.NoError(err)
	cliTLS, err := certs.ClientTLSConfig(certFile, false, "localhost")
	require.NoError(err)

	s := newTestServer(t, 10, srvTLS)

	alice, err := dial(t, s, 0, "alice", testPassword, cliTLS)
	require.NoError(err)
	defer alice.Close()
	bob, err := dial(t, s, 1, "bob", testPassword, cliTLS)
	require.NoError(err)
	defer bob.Close()

	require.Equal("* bob joined the chat", recv(t, alice))
	require.NoError(bob.Send("sobre TLS"))
	require.Equal("bob: sobre TLS", recv(t, alice))

	// A plaintext client cannot log in to a TLS listener.
	sk, ck := testKeys(t)
	_, err = client.Dial(context.Background(), client.Config{
		Address:     s.Addr().String(),
		ServerKey:   sk.Public,
		Nickname:    "carol",
		Password:    []byte(testPassword),
		Own:         ck[2],
		DialTimeout: time.Second,
	})
	require.Error(err)
	require.Equal(2, s.Registry().Len())
}

func TestServer_Shutdown(t *testing.T) {
	s := newTestServer(t, 10, nil)
	alice := mustDial(t, s, 0, "alice")
	mustDial(t, s, 1, "bob")
	waitLen(t, s, 2)

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	s.Wait()

	require.Zero(t, s.Registry().Len())
	require.NoError(t, alice.SetReadTimeout(5*time.Second))
	for {
		// Leave announcements may arrive before the close.
		if _, err := alice.Receive(); err != nil {
			break
		}
	}
	_, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.Error(t, err)
}

func TestServer_EvictOnce(t *testing.T) {
	s := newTestServer(t, 10, nil)
	alice := mustDial(t, s, 0, "alice")
	bob := mustDial(t, s, 1, "bob")
	require.Equal(t, "* bob joined the chat", recv(t, alice))
	waitLen(t, s, 2)

	var bobID domain.ConnID
	for _, e := range s.Registry().Snapshot() {
		if e.Name == "bob" {
			bobID = e.ID
		}
	}
	require.NotZero(t, bobID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.evict(bobID)
		}()
	}
	wg.Wait()

	require.Equal(t, "* bob left the chat", recv(t, alice))
	requireSilent(t, alice)
	require.NoError(t, bob.SetReadTimeout(5*time.Second))
	_, err := bob.Receive()
	require.Error(t, err)
}

func TestNew_BindFailure(t *testing.T) {
	s := newTestServer(t, 1, nil)
	sk, _ := testKeys(t)
	_, err := New(Config{
		Address:    s.Addr().String(),
		KeyPair:    sk,
		Password:   handshake.NewPassword([]byte("x")),
		MaxClients: 1,
	})
	require.ErrorIs(t, err, domain.ErrConnection)
}

func TestConfig_Validate(t *testing.T) {
	sk, _ := testKeys(t)
	cfg := Config{KeyPair: sk, Password: handshake.NewPassword([]byte("x")), MaxClients: 4}
	require.NoError(t, cfg.validate())
	require.Equal(t, 4+HandshakeHeadroom, cfg.MaxWorkers)

	cfg.MaxWorkers = 2
	require.Error(t, cfg.validate())
	require.Error(t, (&Config{KeyPair: sk, MaxClients: 1}).validate())
}
