package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/interrupt"
)

// startBridge registers ops on a fresh server, starts Serve and returns the
// caller plus a stop function that closes the client and waits for Serve.
func startBridge(t *testing.T, cfg Config, check func() error, setup func(s *Server)) (*Caller, func()) {
	t.Helper()
	s := NewServer(cfg)
	setup(s)
	c := s.Client(check)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.Close()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Serve() error: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Error("Serve did not return")
			}
			s.Close()
		})
	}
	t.Cleanup(stop)
	return c, stop
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferSize = 16
	cfg.Checkpoint = 5 * time.Millisecond
	return cfg
}

func TestCall_RoundTripWithResize(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, 1000, 100000}

	for _, size := range sizes {
		var calls atomic.Int32
		payload := bytes.Repeat([]byte{0, 1, 2, 0xfe, 0xff}, size/5+1)[:size]

		c, _ := startBridge(t, smallConfig(), nil, func(s *Server) {
			if err := s.Register("blob", func(ctx context.Context, args json.RawMessage) (any, error) {
				calls.Add(1)
				return payload, nil
			}); err != nil {
				t.Fatalf("Register() error: %v", err)
			}
		})

		raw, err := c.Call("blob", nil)
		if err != nil {
			t.Fatalf("size %d: Call() error: %v", size, err)
		}
		var got []byte
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("size %d: operation invoked %d times, want 1", size, n)
		}
	}
}

func TestCall_Arguments(t *testing.T) {
	c, _ := startBridge(t, smallConfig(), nil, func(s *Server) {
		_ = s.Register("upper", func(ctx context.Context, args json.RawMessage) (any, error) {
			var in []string
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return strings.ToUpper(strings.Join(in, " ")), nil
		})
	})

	for i := 0; i < 3; i++ {
		raw, err := c.Call("upper", []string{"hello", "world"})
		if err != nil {
			t.Fatalf("Call() error: %v", err)
		}
		if string(raw) != `"HELLO WORLD"` {
			t.Errorf("Call() = %s", raw)
		}
	}
}

func TestCall_ErrorReply(t *testing.T) {
	c, _ := startBridge(t, smallConfig(), nil, func(s *Server) {
		_ = s.Register("plain", func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("oops!")
		})
		_ = s.Register("typed", func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, &fault.Error{Kind: "TypeError", Message: "not a function", Trace: "TypeError: not a function\n\tat f (x.js:1:1)"}
		})
		_ = s.Register("panics", func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("kaboom")
		})
	})

	_, err := c.Call("plain", nil)
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindRuntime || fe.Message != "oops!" {
		t.Errorf("plain error = %#v", err)
	}

	_, err = c.Call("typed", nil)
	if !errors.As(err, &fe) {
		t.Fatalf("typed error = %v", err)
	}
	if fe.Kind != "TypeError" || fe.Message != "not a function" || !strings.Contains(fe.Trace, "x.js:1:1") {
		t.Errorf("typed error = %+v", fe)
	}

	_, err = c.Call("panics", nil)
	if !errors.Is(err, fault.ErrRuntime) || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("panic error = %v", err)
	}
}

func TestCall_OversizedReply(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxReplyBytes = 128
	var calls atomic.Int32
	c, _ := startBridge(t, cfg, nil, func(s *Server) {
		_ = s.Register("big", func(ctx context.Context, args json.RawMessage) (any, error) {
			if calls.Add(1) == 1 {
				return strings.Repeat("x", 1000), nil
			}
			return "small", nil
		})
	})

	if _, err := c.Call("big", nil); !errors.Is(err, fault.ErrBridgeProtocol) {
		t.Fatalf("Call() = %v, want BridgeProtocolError", err)
	}
	raw, err := c.Call("big", nil)
	if err != nil {
		t.Fatalf("second Call() error: %v", err)
	}
	if string(raw) != `"small"` {
		t.Errorf("second Call() = %s", raw)
	}
}

func TestCall_UnknownOp(t *testing.T) {
	c, _ := startBridge(t, smallConfig(), nil, func(s *Server) {})
	if _, err := c.Call("missing", nil); !errors.Is(err, fault.ErrBridgeProtocol) {
		t.Errorf("Call() = %v, want BridgeProtocolError", err)
	}
}

func TestCall_OverlappingFails(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	c, _ := startBridge(t, smallConfig(), nil, func(s *Server) {
		_ = s.Register("slow", func(ctx context.Context, args json.RawMessage) (any, error) {
			close(entered)
			<-release
			return "done", nil
		})
	})

	first := make(chan error, 1)
	go func() {
		_, err := c.Call("slow", nil)
		first <- err
	}()
	<-entered

	if _, err := c.Call("slow", nil); !errors.Is(err, fault.ErrBridgeProtocol) {
		t.Errorf("overlapping Call() = %v, want BridgeProtocolError", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Errorf("first Call() error: %v", err)
	}
}

func TestCall_InterruptedWhileBlocked(t *testing.T) {
	flag := interrupt.New()
	c, _ := startBridge(t, smallConfig(), flag.Check, func(s *Server) {
		_ = s.Register("stdin", func(ctx context.Context, args json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Request()
	}()

	start := time.Now()
	_, err := c.Call("stdin", nil)
	if !errors.Is(err, fault.ErrInterrupted) {
		t.Fatalf("Call() = %v, want InterruptedError", err)
	}
	if time.Since(start) > time.Second {
		t.Error("interrupt took longer than a second to observe")
	}
}

func TestNotify_OrderedWithCalls(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	c, stop := startBridge(t, smallConfig(), nil, func(s *Server) {
		_ = s.Handle("out", func(payload json.RawMessage) {
			var text string
			_ = json.Unmarshal(payload, &text)
			record(text)
		})
		_ = s.Register("read", func(ctx context.Context, args json.RawMessage) (any, error) {
			record("read")
			return "line", nil
		})
	})

	if err := c.Notify("out", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Call("read", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Notify("out", "c"); err != nil {
		t.Fatal(err)
	}
	stop()

	want := []string{"a", "read", "c"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRegisterAfterClient(t *testing.T) {
	s := NewServer(DefaultConfig())
	defer s.Close()
	s.Client(nil)
	err := s.Register("late", func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil })
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Register() after Client = %v, want ConfigurationError", err)
	}
}

func TestDecodeReply_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"wrong id", `{"kind":"reply","id":99,"payload":"x"}`},
		{"error kind with ok status", `{"kind":"error","id":1,"payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeReply("op", 1, []byte(tt.data), 1)
			if !errors.Is(err, fault.ErrBridgeProtocol) {
				t.Errorf("decodeReply() = %v, want BridgeProtocolError", err)
			}
		})
	}
}

func TestClose_WaitsForInFlightCalls(t *testing.T) {
	entered := make(chan struct{})
	var returned atomic.Bool
	s := NewServer(smallConfig())
	_ = s.Register("stdin", func(ctx context.Context, args json.RawMessage) (any, error) {
		close(entered)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		returned.Store(true)
		return nil, ctx.Err()
	})
	c := s.Client(nil)
	go s.Serve(context.Background())

	go c.Call("stdin", nil)
	<-entered

	s.Close()
	if !returned.Load() {
		t.Error("Close() returned while a call was still running")
	}
}

func TestClose_DropsLaterCalls(t *testing.T) {
	var calls atomic.Int32
	s := NewServer(smallConfig())
	_ = s.Register("op", func(ctx context.Context, args json.RawMessage) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	s.Client(nil)
	s.Close()

	s.dispatch(Message{Kind: KindCall, ID: 1, Op: "op"})
	s.calls.Wait()
	if n := calls.Load(); n != 0 {
		t.Errorf("op invoked %d times after Close", n)
	}
}
