package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsmostafa/goconsole/internal/bridge"
	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/guest"
	"github.com/itsmostafa/goconsole/internal/interrupt"
	"github.com/itsmostafa/goconsole/internal/stream"
)

// StdinHandler supplies one line of input. prompt is the hint passed by the
// snippet, possibly empty. It runs on a controller goroutine and should
// return promptly; ctx is cancelled when the session is released.
type StdinHandler func(ctx context.Context, prompt string) (string, error)

// Session is one submitted snippet.
//
// Handlers may be bound only before Start. The syntax result settles before
// the final result, except for a compile failure, which settles both with
// the same error. Every stream event the snippet produced is delivered
// before the final result settles.
type Session struct {
	id      uuid.UUID
	source  string
	console *Console
	log     *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
	stdin   StdinHandler
	stdout  stream.Handler
	stderr  stream.Handler

	flag   interrupt.Flag
	syntax *future[struct{}]
	result *future[string]

	server      *bridge.Server
	mux         *stream.Mux
	releaseOnce sync.Once
	released    bool
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Source returns the submitted text.
func (s *Session) Source() string { return s.source }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BindStdin sets the input handler. Without one, input() fails inside the
// snippet.
func (s *Session) BindStdin(h StdinHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fault.Configuration("cannot bind stdin handler after the session started")
	}
	s.stdin = h
	return nil
}

// BindStdout sets the stdout handler.
func (s *Session) BindStdout(h stream.Handler) error {
	return s.bindStream(stream.Stdout, h)
}

// BindStderr sets the stderr handler.
func (s *Session) BindStderr(h stream.Handler) error {
	return s.bindStream(stream.Stderr, h)
}

func (s *Session) bindStream(kind stream.Kind, h stream.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fault.Configuration("cannot bind %s handler after the session started", kind)
	}
	if kind == stream.Stdout {
		s.stdout = h
	} else {
		s.stderr = h
	}
	return nil
}

// Start validates and runs the snippet on the interpreter goroutine. It
// returns immediately; use AwaitSyntaxValid and AwaitResult for outcomes.
// A session starts at most once.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fault.Configuration("session already started")
	}
	s.started = true
	s.state = StateValidating
	stdin, stdout, stderr := s.stdin, s.stdout, s.stderr
	s.mu.Unlock()

	server, err := s.newServer(stdin, stdout, stderr)
	if err != nil {
		s.finish("", err)
		return err
	}
	s.log.Debug("session started", "bytes", len(s.source))
	go s.run(server)
	return nil
}

// RequestInterrupt asks the running snippet to stop at its next checkpoint.
// It has no effect once the session settled.
func (s *Session) RequestInterrupt() {
	if s.State().Terminal() {
		return
	}
	s.flag.Request()
	s.log.Debug("interrupt requested")
}

// AwaitSyntaxValid waits until the snippet compiled (nil) or failed to.
func (s *Session) AwaitSyntaxValid(ctx context.Context) error {
	_, err := s.syntax.await(ctx)
	return err
}

// AwaitResult waits for the final outcome: the short rendering of the
// completion value ("" when there is none), or a *fault.Error.
func (s *Session) AwaitResult(ctx context.Context) (string, error) {
	return s.result.await(ctx)
}

// newServer builds the controller end of this session's bridge.
func (s *Session) newServer(stdin StdinHandler, stdout, stderr stream.Handler) (*bridge.Server, error) {
	config := s.console.config.bridgeConfig()
	config.Logger = s.log
	server := bridge.NewServer(config)

	s.mux = stream.NewMux()
	s.mux.Bind(stream.Stdout, stdout)
	s.mux.Bind(stream.Stderr, stderr)
	for _, kind := range []stream.Kind{stream.Stdout, stream.Stderr} {
		err := server.Handle(string(kind), func(payload json.RawMessage) {
			var text string
			if err := json.Unmarshal(payload, &text); err != nil {
				s.log.Warn("dropping undecodable output", "stream", kind, "error", err)
				return
			}
			s.mux.Write(kind, text)
		})
		if err != nil {
			return nil, err
		}
	}

	err := server.Register(opStdin, func(ctx context.Context, args json.RawMessage) (any, error) {
		if stdin == nil {
			return nil, fault.New(fault.KindRuntime, "no stdin handler registered")
		}
		var prompt string
		if err := json.Unmarshal(args, &prompt); err != nil {
			return nil, fault.Protocol("stdin prompt is not a string: %v", err)
		}
		return stdin(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	for _, name := range s.console.ops {
		if err := server.Register(name, s.console.config.Ops[name]); err != nil {
			return nil, err
		}
	}

	s.server = server
	return server, nil
}

// run drives the session to settlement. It runs on a controller goroutine
// and only awaits: the blocking happens on the interpreter goroutine.
func (s *Session) run(server *bridge.Server) {
	start := time.Now()
	caller := server.Client(s.flag.Check)

	served := make(chan error, 1)
	go func() { served <- server.Serve(context.Background()) }()

	var value string
	var runErr error
	err := s.console.interp.Do(context.Background(), func(rt *guest.Runtime) {
		defer caller.Close()
		prog, err := guest.Compile(s.source)
		if err != nil {
			runErr = err
			return
		}
		s.syntaxValid()
		value, runErr = rt.Run(prog, &bridgeHost{caller: caller, ops: s.console.ops}, &s.flag)
	})
	if err != nil {
		caller.Close()
		if errors.Is(err, guest.ErrClosed) {
			err = fault.Configuration("console is closed")
		}
		runErr = err
	}

	if err := <-served; err != nil {
		s.log.Warn("bridge stopped early", "error", err)
	}
	s.finish(value, runErr)
	s.log.Debug("session settled", "state", s.State().String(), "duration", time.Since(start))
}

func (s *Session) syntaxValid() {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	s.syntax.settle(struct{}{}, nil)
}

// finish records the terminal state, releases the session's resources and
// settles the result.
func (s *Session) finish(value string, err error) {
	state := StateSucceeded
	if err != nil {
		fe := fault.From(err)
		err = fe
		value = ""
		switch {
		case errors.Is(fe, fault.ErrSyntax):
			state = StateSyntaxError
		case errors.Is(fe, fault.ErrInterrupted):
			state = StateInterrupted
		default:
			state = StateFailed
		}
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if err != nil {
		// no-op when the snippet compiled
		s.syntax.settle(struct{}{}, err)
	}
	s.release()
	s.result.settle(value, err)
}

// release drops everything the session acquired at Start. It runs exactly
// once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.server != nil {
			s.server.Close()
		}
		if s.mux != nil {
			s.mux.Reset()
		}
		s.mu.Lock()
		s.stdin, s.stdout, s.stderr = nil, nil, nil
		s.released = true
		s.mu.Unlock()
	})
}
