package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorker_Halt(t *testing.T) {
	var w Worker
	var n atomic.Int32
	for i := 0; i < 4; i++ {
		w.Go(func() {
			<-w.HaltCh()
			n.Add(1)
		})
	}
	w.Halt()
	require.EqualValues(t, 4, n.Load())

	// A second halt must not panic on the closed channel.
	w.Halt()
}

func TestWorker_HaltTimeout(t *testing.T) {
	var w Worker
	release := make(chan struct{})
	w.Go(func() { <-release })

	require.False(t, w.HaltTimeout(20*time.Millisecond))
	close(release)
	require.True(t, w.WaitTimeout(time.Second))
}
