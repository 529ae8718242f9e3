package interrupt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsmostafa/goconsole/internal/fault"
)

func TestFlag_RequestAndCheck(t *testing.T) {
	f := New()
	if f.Load() != Run {
		t.Fatalf("new flag state = %v, want Run", f.Load())
	}
	if err := f.Check(); err != nil {
		t.Fatalf("Check() before request = %v", err)
	}

	f.Request()
	if f.Load() != Interrupt {
		t.Errorf("state = %v, want Interrupt", f.Load())
	}
	if err := f.Check(); !errors.Is(err, fault.ErrInterrupted) {
		t.Errorf("Check() = %v, want ErrInterrupted", err)
	}
}

func TestFlag_Watch(t *testing.T) {
	f := New()
	fired := make(chan struct{})
	go f.Watch(context.Background(), time.Millisecond, func() { close(fired) })

	time.Sleep(5 * time.Millisecond)
	f.Request()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Watch did not observe the interrupt")
	}
}

func TestFlag_WatchStopsOnCancel(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Watch(ctx, time.Millisecond, func() { t.Error("fn called without interrupt") })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestFlag_Sleep(t *testing.T) {
	f := New()
	start := time.Now()
	if err := f.Sleep(20*time.Millisecond, 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep() = %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Sleep returned early")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Request()
	}()
	start = time.Now()
	err := f.Sleep(10*time.Second, 5*time.Millisecond)
	if !errors.Is(err, fault.ErrInterrupted) {
		t.Fatalf("Sleep() = %v, want ErrInterrupted", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("interrupted Sleep took too long")
	}
}
