package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/interrupt"
	"github.com/itsmostafa/goconsole/internal/shm"
)

// Func is a controller-side operation exposed to the interpreter. It may
// block; the server runs it off the mailbox loop.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// NotifyFunc handles a notification. It runs on the mailbox loop and must
// return promptly.
type NotifyFunc func(payload json.RawMessage)

// Config tunes a Server.
type Config struct {
	// BufferSize is the initial data region of every channel, in bytes.
	BufferSize int
	// MaxReplyBytes bounds an encoded reply. Larger replies are replaced by
	// a BridgeProtocolError. Zero means no limit.
	MaxReplyBytes int
	// Checkpoint is how long a blocked caller waits before polling its
	// cancellation check.
	Checkpoint time.Duration
	// Mailbox is the capacity of the ordered request mailbox.
	Mailbox int
	Logger  *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1024,
		MaxReplyBytes: 16 << 20,
		Checkpoint:    interrupt.DefaultCheckpoint,
		Mailbox:       64,
	}
}

type endpoint struct {
	op string
	fn Func
	ch *shm.Channel
	// busy guards against overlapping calls on the same channel.
	busy sync.Mutex
}

// Server is the controller end of a bridge.
type Server struct {
	cfg     Config
	log     *slog.Logger
	mailbox chan Message
	ops     map[string]*endpoint
	notes   map[string]NotifyFunc

	mu     sync.Mutex
	frozen bool
	closed bool
	calls  sync.WaitGroup

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a server with no operations registered.
func NewServer(cfg Config) *Server {
	if cfg.Mailbox <= 0 {
		cfg.Mailbox = DefaultConfig().Mailbox
	}
	if cfg.Checkpoint <= 0 {
		cfg.Checkpoint = interrupt.DefaultCheckpoint
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		log:     logger,
		mailbox: make(chan Message, cfg.Mailbox),
		ops:     make(map[string]*endpoint),
		notes:   make(map[string]NotifyFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register exposes fn as the bridged function op and allocates its channel.
// Registration must happen before Client is called.
func (s *Server) Register(op string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fault.Configuration("cannot register %q after the client was created", op)
	}
	if _, ok := s.ops[op]; ok {
		return fault.Configuration("bridged function %q already registered", op)
	}
	s.ops[op] = &endpoint{op: op, fn: fn, ch: shm.NewChannel(s.cfg.BufferSize)}
	return nil
}

// Handle registers a notification handler for op.
func (s *Server) Handle(op string, fn NotifyFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fault.Configuration("cannot handle %q after the client was created", op)
	}
	s.notes[op] = fn
	return nil
}

// Ops returns the names of the registered bridged functions.
func (s *Server) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	return names
}

// Client freezes the registrations and returns the interpreter end of the
// bridge. check is polled every checkpoint while a call is blocked; a
// non-nil result abandons the call.
func (s *Server) Client(check func() error) *Caller {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	return &Caller{
		mailbox:    s.mailbox,
		done:       s.ctx.Done(),
		ops:        s.ops,
		checkpoint: s.cfg.Checkpoint,
		check:      check,
	}
}

// Serve processes the mailbox in order until the client closes it, ctx is
// done, or the server is closed. Notifications run inline; calls run on
// their own goroutine and reply through their channel.
func (s *Server) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case msg, ok := <-s.mailbox:
			if !ok {
				return nil
			}
			s.dispatch(msg)
		}
	}
}

// Close releases every channel, cancels in-flight operations and waits for
// them to return. No operation starts afterwards. It is safe to call more
// than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		for _, ep := range s.ops {
			ep.ch.Close()
		}
		s.calls.Wait()
	})
}

func (s *Server) dispatch(msg Message) {
	if msg.Kind != KindCall {
		s.log.Warn("dropping unexpected message", "kind", msg.Kind, "id", msg.ID)
		return
	}
	if msg.ID == 0 {
		fn, ok := s.notes[msg.Op]
		if !ok {
			s.log.Warn("no handler for notification", "op", msg.Op)
			return
		}
		fn(msg.Payload)
		return
	}
	ep, ok := s.ops[msg.Op]
	if !ok {
		s.log.Warn("call to unregistered function", "op", msg.Op, "id", msg.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("dropping call after close", "op", msg.Op, "id", msg.ID)
		return
	}
	s.calls.Add(1)
	go s.serveCall(ep, msg)
}

func (s *Server) serveCall(ep *endpoint, msg Message) {
	defer s.calls.Done()
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	result, err := s.invoke(ep, msg.Payload)
	data, st := s.encode(ep.op, msg.ID, result, err)
	if werr := ep.ch.Write(s.ctx, data, st); werr != nil {
		s.log.Debug("reply not delivered", "op", ep.op, "id", msg.ID, "error", werr)
		return
	}
	s.log.Debug("bridged call served", "op", ep.op, "id", msg.ID,
		"status", st.String(), "bytes", len(data), "duration", time.Since(start))
}

func (s *Server) invoke(ep *endpoint, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.KindRuntime, "%s: panic: %v", ep.op, r)
		}
	}()
	return ep.fn(s.ctx, args)
}

// encode serializes the outcome of one call. The operation has already run;
// encoding never invokes it again.
func (s *Server) encode(op string, id uint64, result any, err error) ([]byte, shm.Status) {
	reply := Message{Kind: KindReply, ID: id, Op: op}
	st := shm.StatusOK
	if err == nil {
		payload, merr := json.Marshal(result)
		if merr != nil {
			err = fault.Protocol("encode reply for %s: %v", op, merr)
		} else {
			reply.Payload = payload
		}
	}
	if err != nil {
		reply.Kind = KindError
		reply.Payload = mustMarshal(fault.From(err))
		st = shm.StatusError
	}

	data := mustMarshal(reply)
	if s.cfg.MaxReplyBytes > 0 && len(data) > s.cfg.MaxReplyBytes {
		tooLarge := fault.Protocol("reply for %s is %d bytes, limit is %d", op, len(data), s.cfg.MaxReplyBytes)
		data = mustMarshal(Message{Kind: KindError, ID: id, Op: op, Payload: mustMarshal(tooLarge)})
		st = shm.StatusError
	}
	return data, st
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// only called with Message and *fault.Error values
		panic(fmt.Sprintf("bridge: marshal %T: %v", v, err))
	}
	return data
}
