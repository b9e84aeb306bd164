package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"securechat/internal/client"
	"securechat/internal/crypto"
	"securechat/internal/domain"
)

func TestDial_RequiresServerKey(t *testing.T) {
	_, err := client.Dial(context.Background(), client.Config{Address: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestDial_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	kp, err := crypto.GenerateKeyPair(2048)
	require.NoError(t, err)
	_, err = client.Dial(context.Background(), client.Config{
		Address:     addr,
		ServerKey:   kp.Public,
		Own:         kp,
		DialTimeout: time.Second,
	})
	require.ErrorIs(t, err, domain.ErrConnection)
}
