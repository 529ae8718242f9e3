// Package shm provides the shared memory primitives used to make a call
// across execution contexts look synchronous: a waitable atomic word and a
// status/data channel built on it.
package shm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// WaitResult is the outcome of Word.Wait.
type WaitResult int

const (
	// WaitOK means the waiter was woken by Notify.
	WaitOK WaitResult = iota
	// WaitNotEqual means the word no longer held the expected value.
	WaitNotEqual
	// WaitTimedOut means the timeout elapsed without a notification.
	WaitTimedOut
)

func (r WaitResult) String() string {
	switch r {
	case WaitOK:
		return "ok"
	case WaitNotEqual:
		return "not-equal"
	case WaitTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Word is a 64-bit value with futex-like wait/notify semantics.
// Writers must Store before calling Notify.
type Word struct {
	v    atomic.Uint64
	mu   sync.Mutex
	wake chan struct{}
}

// Load atomically reads the word.
func (w *Word) Load() uint64 { return w.v.Load() }

// Store atomically writes the word. It does not wake waiters.
func (w *Word) Store(v uint64) { w.v.Store(v) }

// Add atomically adds delta and returns the new value.
func (w *Word) Add(delta uint64) uint64 { return w.v.Add(delta) }

// Notify wakes every goroutine currently blocked in Wait.
func (w *Word) Notify() {
	w.mu.Lock()
	if w.wake != nil {
		close(w.wake)
		w.wake = nil
	}
	w.mu.Unlock()
}

// arm returns the channel closed by the next Notify, or nil when the word
// already differs from old.
func (w *Word) arm(old uint64) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.v.Load() != old {
		return nil
	}
	if w.wake == nil {
		w.wake = make(chan struct{})
	}
	return w.wake
}

// Wait blocks while the word equals old, until Notify or timeout.
// A timeout <= 0 waits without bound.
func (w *Word) Wait(old uint64, timeout time.Duration) WaitResult {
	wake := w.arm(old)
	if wake == nil {
		return WaitNotEqual
	}
	if timeout <= 0 {
		<-wake
		return WaitOK
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wake:
		return WaitOK
	case <-timer.C:
		return WaitTimedOut
	}
}

// WaitContext blocks until the word differs from old or ctx is done.
// It is the awaiting form used by the controller side.
func (w *Word) WaitContext(ctx context.Context, old uint64) error {
	for {
		wake := w.arm(old)
		if wake == nil {
			return nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
