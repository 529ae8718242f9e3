// Package console implements execution sessions: one submitted snippet is
// validated, run on the interpreter goroutine, and settled, while its
// input and output are bridged to handlers bound by the controller.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/itsmostafa/goconsole/internal/guest"
)

// Console owns one interpreter context. Sessions begun on the same Console
// run one after another and share guest globals.
type Console struct {
	config Config
	log    *slog.Logger
	interp *guest.Interpreter
	ops    []string
}

// New validates config and starts the interpreter goroutine.
func New(config Config) (*Console, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interp, err := guest.NewInterpreter(config.guestConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to start interpreter: %w", err)
	}

	ops := make([]string, 0, len(config.Ops))
	for name := range config.Ops {
		ops = append(ops, name)
	}
	slices.Sort(ops)

	return &Console{
		config: config,
		log:    logger,
		interp: interp,
		ops:    ops,
	}, nil
}

// BeginExecution creates a session for source. Nothing runs until Start.
func (c *Console) BeginExecution(source string) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		source:  source,
		console: c,
		log:     c.log.With("session", id.String()),
		state:   StateCreated,
		syntax:  newFuture[struct{}](),
		result:  newFuture[string](),
	}
}

// Complete returns tab completion candidates for line.
func (c *Console) Complete(ctx context.Context, line string) ([]string, error) {
	return c.interp.Complete(ctx, line)
}

// Ops returns the names of the extra host operations, sorted.
func (c *Console) Ops() []string { return c.ops }

// Close stops the interpreter goroutine. Sessions started afterwards fail
// with a ConfigurationError.
func (c *Console) Close() {
	c.interp.Close()
}
