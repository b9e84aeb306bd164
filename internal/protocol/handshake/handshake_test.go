package handshake_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/protocol/handshake"
	"securechat/internal/protocol/wire"
)

var (
	keysOnce   sync.Once
	serverKeys *crypto.KeyPair
	clientKeys *crypto.KeyPair
)

func keys(t *testing.T) (*crypto.KeyPair, *crypto.KeyPair) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if serverKeys, err = crypto.GenerateKeyPair(2048); err != nil {
			panic(err)
		}
		if clientKeys, err = crypto.GenerateKeyPair(2048); err != nil {
			panic(err)
		}
	})
	return serverKeys, clientKeys
}

func pipe(t *testing.T) (*wire.Conn, *wire.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return wire.NewConn(a), wire.NewConn(b)
}

type serverOutcome struct {
	res handshake.Result
	err error
	hs  *handshake.Server
}

func runServer(t *testing.T, c *wire.Conn, admit handshake.AdmitFunc) <-chan serverOutcome {
	t.Helper()
	sk, _ := keys(t)
	hs := handshake.NewServer(sk, handshake.NewPassword([]byte("secreto")), admit)
	ch := make(chan serverOutcome, 1)
	go func() {
		res, err := hs.Run(c)
		ch <- serverOutcome{res, err, hs}
	}()
	return ch
}

func newClient(t *testing.T, nick, password string) *handshake.Client {
	sk, ck := keys(t)
	return &handshake.Client{
		Own:       ck,
		ServerKey: sk.Public,
		Nickname:  nick,
		Password:  []byte(password),
	}
}

func TestHandshake_Success(t *testing.T) {
	require := require.New(t)
	srvConn, cliConn := pipe(t)

	var admitted []string
	out := runServer(t, srvConn, func(name string, pub *rsa.PublicKey) error {
		admitted = append(admitted, name)
		return nil
	})

	require.NoError(newClient(t, "  ana  ", "secreto").Run(cliConn))

	o := <-out
	require.NoError(o.err)
	require.Equal("ana", o.res.Name)
	_, ck := keys(t)
	require.True(o.res.PublicKey.Equal(ck.Public))
	require.Equal(handshake.StateAuthenticated, o.hs.State())
	require.Equal([]string{"ana"}, admitted)

	_, err := o.hs.Run(srvConn)
	require.ErrorIs(err, domain.ErrHandshake)
}

func TestHandshake_WrongPassword(t *testing.T) {
	srvConn, cliConn := pipe(t)
	called := false
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error {
		called = true
		return nil
	})

	err := newClient(t, "ana", "incorrecta").Run(cliConn)
	require.ErrorIs(t, err, domain.ErrAuthentication)

	o := <-out
	require.ErrorIs(t, o.err, domain.ErrAuthentication)
	require.Equal(t, handshake.StateRejected, o.hs.State())
	require.False(t, called)
}

func TestHandshake_ServerFull(t *testing.T) {
	srvConn, cliConn := pipe(t)
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error {
		return domain.ErrCapacity
	})

	err := newClient(t, "ana", "secreto").Run(cliConn)
	require.ErrorIs(t, err, domain.ErrCapacity)
	require.ErrorIs(t, (<-out).err, domain.ErrCapacity)
}

func TestHandshake_GarbagePublicKey(t *testing.T) {
	require := require.New(t)
	srvConn, peer := pipe(t)
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error {
		t.Error("admit must not be called")
		return nil
	})

	for _, want := range []string{wire.TokenPublicKeyReady, wire.TokenClientPublicKey} {
		got, err := peer.ReadLine()
		require.NoError(err)
		require.Equal(want, got)
	}
	require.NoError(peer.Send("esto no es una clave"))

	verdict, err := peer.ReadLine()
	require.NoError(err)
	require.Equal(wire.TokenAuthFailed, verdict)

	o := <-out
	require.ErrorIs(o.err, domain.ErrHandshake)
	require.Equal(handshake.StateRejected, o.hs.State())
}

func TestHandshake_WeakClientKey(t *testing.T) {
	require := require.New(t)
	srvConn, peer := pipe(t)
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error { return nil })

	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(err)
	pemBytes, err := crypto.EncodePublicKeyPEM(&weak.PublicKey)
	require.NoError(err)

	_, _ = peer.ReadLine()
	_, _ = peer.ReadLine()
	require.NoError(peer.Send(crypto.B64(pemBytes)))

	verdict, err := peer.ReadLine()
	require.NoError(err)
	require.Equal(wire.TokenAuthFailed, verdict)
	require.ErrorIs((<-out).err, domain.ErrHandshake)
}

func TestHandshake_OutOfOrderReply(t *testing.T) {
	require := require.New(t)
	srvConn, peer := pipe(t)
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error { return nil })

	_, ck := keys(t)
	pemBytes, err := crypto.EncodePublicKeyPEM(ck.Public)
	require.NoError(err)

	_, _ = peer.ReadLine()
	_, _ = peer.ReadLine()
	require.NoError(peer.Send(crypto.B64(pemBytes)))

	got, err := peer.ReadLine()
	require.NoError(err)
	require.Equal(wire.TokenNick, got)

	// A token where ciphertext belongs fails to decrypt.
	require.NoError(peer.Send(wire.TokenPassword))
	verdict, err := peer.ReadLine()
	require.NoError(err)
	require.Equal(wire.TokenAuthFailed, verdict)

	o := <-out
	require.ErrorIs(o.err, domain.ErrHandshake)
	require.ErrorIs(o.err, domain.ErrCrypto)
}

func TestHandshake_PeerHangsUp(t *testing.T) {
	srvConn, peer := pipe(t)
	out := runServer(t, srvConn, func(string, *rsa.PublicKey) error { return nil })

	_, _ = peer.ReadLine()
	_ = peer.Close()
	require.ErrorIs(t, (<-out).err, domain.ErrHandshake)
}

func TestClient_UnexpectedToken(t *testing.T) {
	cliConn, peer := pipe(t)
	errCh := make(chan error, 1)
	go func() { errCh <- newClient(t, "ana", "secreto").Run(cliConn) }()

	require.NoError(t, peer.Send(wire.TokenNick))
	err := <-errCh
	require.ErrorIs(t, err, domain.ErrHandshake)
	require.False(t, errors.Is(err, domain.ErrAuthentication))
}

func TestValidateNickname(t *testing.T) {
	good := map[string]string{
		"ana":            "ana",
		"  beto\t":       "beto",
		"José":           "José",
		strings.Repeat("n", handshake.MaxNicknameLength): strings.Repeat("n", handshake.MaxNicknameLength),
	}
	for in, want := range good {
		got, err := handshake.ValidateNickname(in)
		require.NoError(t, err, "%q", in)
		require.Equal(t, want, got)
	}

	for _, in := range []string{
		"",
		"   ",
		"a\x00b",
		"a\x1bb",
		string([]byte{0xff, 0xfe}),
		strings.Repeat("n", handshake.MaxNicknameLength+1),
	} {
		_, err := handshake.ValidateNickname(in)
		require.ErrorIs(t, err, domain.ErrHandshake, "%q", in)
	}
}

func TestPassword(t *testing.T) {
	p := handshake.NewPassword([]byte("secreto"))
	require.True(t, p.Equal([]byte("secreto")))
	require.False(t, p.Equal([]byte("secret")))
	require.False(t, p.Equal(nil))

	var nilPw *handshake.Password
	require.False(t, nilPw.Equal([]byte("secreto")))
}
