// Package worker provides background worker tasks.
package worker

import (
	"sync"
	"time"
)

// Worker is a set of managed background go routines.
type Worker struct {
	sync.WaitGroup
	initOnce sync.Once
	haltOnce sync.Once

	haltCh chan interface{}
}

// Go executes the function fn in a new Go routine. Multiple Go routines may
// be started under the same Worker. It is the function's responsibility to
// monitor the channel returned by `Worker.HaltCh()` and to return.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt signals all Go routines started under a Worker to terminate, and waits
// till all go routines have returned.
func (w *Worker) Halt() {
	w.Signal()
	w.Wait()
}

// HaltTimeout signals termination and waits at most d for the go routines
// to return. It reports whether they all did.
func (w *Worker) HaltTimeout(d time.Duration) bool {
	w.Signal()
	return w.WaitTimeout(d)
}

// Signal closes the halt channel without waiting. It is safe to call more
// than once.
func (w *Worker) Signal() {
	w.initOnce.Do(w.init)
	w.haltOnce.Do(func() { close(w.haltCh) })
}

// WaitTimeout waits at most d for all go routines to return. A non-positive
// d waits forever.
func (w *Worker) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		w.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
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

// HaltCh returns the channel that will be closed on a call to Halt.
func (w *Worker) HaltCh() <-chan interface{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

func (w *Worker) init() {
	w.haltCh = make(chan interface{})
}
