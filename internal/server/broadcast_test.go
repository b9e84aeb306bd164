package server_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
	"securechat/internal/domain"
	"securechat/internal/log"
	"securechat/internal/registry"
	"securechat/internal/server"
)

type fakeConn struct {
	mu     sync.Mutex
	lines  []string
	fail   bool
	closed bool
}

func (c *fakeConn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

var (
	bkOnce sync.Once
	bkKeys []*crypto.KeyPair
)

func broadcastKeys(t *testing.T) []*crypto.KeyPair {
	t.Helper()
	bkOnce.Do(func() {
		for i := 0; i < 3; i++ {
			kp, err := crypto.GenerateKeyPair(2048)
			if err != nil {
				panic(err)
			}
			bkKeys = append(bkKeys, kp)
		}
	})
	return bkKeys
}

func setup(t *testing.T) (*registry.Registry, []*fakeConn, *server.Broadcaster, *[][]domain.ConnID) {
	t.Helper()
	keys := broadcastKeys(t)
	reg := registry.New(8)
	conns := make([]*fakeConn, len(keys))
	for i, kp := range keys {
		conns[i] = &fakeConn{}
		require.NoError(t, reg.Register(domain.ConnectionEntry{
			ID:        domain.ConnID(i + 1),
			Name:      string(rune('a' + i)),
			PublicKey: kp.Public,
			Conn:      conns[i],
		}))
	}
	backend, err := log.New("", "ERROR", true)
	require.NoError(t, err)

	var failures [][]domain.ConnID
	b := server.NewBroadcaster(reg, backend.GetLogger("broadcast"), func(ids []domain.ConnID) {
		failures = append(failures, ids)
	})
	return reg, conns, b, &failures
}

func TestBroadcast_PerRecipientEncryption(t *testing.T) {
	require := require.New(t)
	_, conns, b, failures := setup(t)
	keys := broadcastKeys(t)

	b.Broadcast("a: hola", 1)

	require.Empty(conns[0].lines, "sender is excluded")
	for i := 1; i < 3; i++ {
		require.Len(conns[i].lines, 1)
		pt, err := crypto.DecryptString(keys[i].Private, conns[i].lines[0])
		require.NoError(err)
		require.Equal("a: hola", string(pt))

		_, err = crypto.DecryptString(keys[0].Private, conns[i].lines[0])
		require.ErrorIs(err, crypto.ErrDecryption, "line is bound to its recipient")
	}
	require.Empty(*failures)
}

func TestBroadcast_ZeroExcludeReachesEveryone(t *testing.T) {
	_, conns, b, _ := setup(t)
	b.Broadcast("* d joined the chat", 0)
	for _, c := range conns {
		require.Len(t, c.lines, 1)
	}
}

func TestBroadcast_WriteFailureReportedOthersServed(t *testing.T) {
	require := require.New(t)
	reg, conns, b, failures := setup(t)
	conns[1].fail = true

	b.Broadcast("hola", 0)

	require.Len(conns[0].lines, 1)
	require.Len(conns[2].lines, 1)
	require.Equal([][]domain.ConnID{{2}}, *failures)
	require.Equal(3, reg.Len(), "eviction is the callback's job")
}

func TestBroadcast_TooLongSkipsWithoutEviction(t *testing.T) {
	_, conns, b, failures := setup(t)
	b.Broadcast(strings.Repeat("x", 191), 0)
	for _, c := range conns {
		require.Empty(t, c.lines)
	}
	require.Empty(t, *failures)
}
