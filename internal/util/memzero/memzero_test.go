package memzero_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"securechat/internal/util/memzero"
)

func TestZero(t *testing.T) {
	b := []byte("secreto")
	memzero.Zero(b)
	require.Equal(t, make([]byte, 7), b)

	memzero.Zero(nil)
}
