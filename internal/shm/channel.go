package shm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Status is the status code half of a channel's status word.
type Status int32

const (
	StatusPending Status = 0
	StatusOK      Status = 1
	StatusError   Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("shm: channel closed")
	// ErrTooLarge is returned for payloads whose length does not fit the
	// status word.
	ErrTooLarge = errors.New("shm: payload too large")
)

// Pack encodes (length, status) into one status word.
func Pack(length int, st Status) uint64 {
	return uint64(uint32(length))<<32 | uint64(uint32(st))
}

// Unpack decodes a status word.
func Unpack(word uint64) (int, Status) {
	return int(uint32(word >> 32)), Status(int32(uint32(word)))
}

// Channel carries one reply at a time from a writer (controller) to a
// blocked reader (interpreter). It has a fixed status word and a data region
// that only the reader replaces, through the resize handshake.
//
// A Channel serves exactly one logical bridged function; calls on it must
// not overlap.
type Channel struct {
	status    Word
	installed Word
	data      atomic.Pointer[[]byte]
	closed    atomic.Bool
}

// NewChannel returns a channel whose data region holds capacity bytes.
func NewChannel(capacity int) *Channel {
	c := &Channel{}
	buf := make([]byte, capacity)
	c.data.Store(&buf)
	return c
}

// Cap returns the current capacity of the data region.
func (c *Channel) Cap() int { return len(*c.data.Load()) }

// Close marks the channel as released. Pending readers are not woken.
func (c *Channel) Close() {
	c.closed.Store(true)
	c.installed.Add(1)
	c.installed.Notify()
}

// Reset prepares the status word for a new call. Reader side.
func (c *Channel) Reset() {
	c.status.Store(Pack(0, StatusPending))
}

// Await blocks until a reply is complete and returns a copy of its payload
// and status. Reader side; only a context allowed to block may call it.
//
// Each wait times out after interval, at which point check is called; a
// non-nil error from check abandons the call and is returned as is. When the
// writer signals that the payload does not fit, Await allocates a larger
// region, installs it and keeps waiting for the same payload.
func (c *Channel) Await(interval time.Duration, check func() error) ([]byte, Status, error) {
	awaited := Pack(0, StatusPending)
	for {
		if err := c.wait(awaited, interval, check); err != nil {
			return nil, StatusPending, err
		}
		word := c.status.Load()
		length, st := Unpack(word)
		if st != StatusPending {
			buf := *c.data.Load()
			if length > len(buf) {
				return nil, st, fmt.Errorf("shm: reply length %d exceeds region of %d bytes", length, len(buf))
			}
			out := make([]byte, length)
			copy(out, buf[:length])
			return out, st, nil
		}
		// (length, pending): the writer needs a larger region.
		c.Install(make([]byte, length))
		awaited = word
	}
}

func (c *Channel) wait(old uint64, interval time.Duration, check func() error) error {
	for {
		switch c.status.Wait(old, interval) {
		case WaitOK, WaitNotEqual:
			if c.status.Load() != old {
				return nil
			}
		case WaitTimedOut:
			if check != nil {
				if err := check(); err != nil {
					return err
				}
			}
		}
	}
}

// Install replaces the data region and wakes a writer waiting for it.
// Reader side.
func (c *Channel) Install(buf []byte) {
	c.data.Store(&buf)
	c.installed.Add(1)
	c.installed.Notify()
}

// Write delivers payload with status st. Writer side. If the payload does
// not fit, Write signals NEEDS_RESIZE and waits for the reader to install a
// larger region; the payload is never recomputed.
func (c *Channel) Write(ctx context.Context, payload []byte, st Status) error {
	if len(payload) > math.MaxUint32 {
		return ErrTooLarge
	}
	for {
		if c.closed.Load() {
			return ErrClosed
		}
		buf := *c.data.Load()
		if len(payload) <= len(buf) {
			copy(buf, payload)
			c.status.Store(Pack(len(payload), st))
			c.status.Notify()
			return nil
		}
		gen := c.installed.Load()
		c.status.Store(Pack(len(payload), StatusPending))
		c.status.Notify()
		if err := c.installed.WaitContext(ctx, gen); err != nil {
			return err
		}
	}
}
