// Package interrupt implements the cooperative cancellation flag shared
// between the controller and the interpreter.
//
// The flag is a plain shared word so the interpreter can observe it at any
// checkpoint, including inside tight loops that never make a bridged call.
package interrupt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/itsmostafa/goconsole/internal/fault"
)

// State is the value held by a Flag.
type State int32

const (
	Run       State = 0
	Interrupt State = 2
)

// DefaultCheckpoint is the default polling interval between checkpoints.
const DefaultCheckpoint = 50 * time.Millisecond

// Flag is written only by the controller and read only by the interpreter.
// A Flag belongs to one session and is never reused.
type Flag struct {
	v atomic.Int32
}

// New returns a flag in the Run state.
func New() *Flag { return &Flag{} }

// Request asks the running snippet to stop at its next checkpoint.
func (f *Flag) Request() { f.v.Store(int32(Interrupt)) }

// Load returns the current state.
func (f *Flag) Load() State { return State(f.v.Load()) }

// Requested reports whether an interrupt has been requested.
func (f *Flag) Requested() bool { return f.Load() == Interrupt }

// Check is a checkpoint: it returns an InterruptedError once an interrupt
// has been requested.
func (f *Flag) Check() error {
	if f.Requested() {
		return fault.Interrupted()
	}
	return nil
}

// Watch polls the flag every interval until ctx is done, calling fn once if
// an interrupt is observed. It blocks; run it on its own goroutine.
func (f *Flag) Watch(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = DefaultCheckpoint
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if f.Requested() {
			fn()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sleep blocks for d, checking the flag every interval. It returns an
// InterruptedError as soon as a checkpoint observes an interrupt.
func (f *Flag) Sleep(d, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultCheckpoint
	}
	deadline := time.Now().Add(d)
	for {
		if err := f.Check(); err != nil {
			return err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		time.Sleep(min(left, interval))
	}
}
