package console

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itsmostafa/goconsole/internal/bridge"
	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/guest"
	"github.com/itsmostafa/goconsole/internal/interrupt"
)

// Config holds configuration for a Console.
type Config struct {
	// Checkpoint is the interval at which a running snippet, or one blocked
	// in a bridged call, polls its interrupt flag (default: 50ms).
	Checkpoint time.Duration

	// BufferSize is the initial shared data region of every bridged
	// function, in bytes (default: 1024). Larger replies go through the
	// resize handshake.
	BufferSize int

	// MaxReplyBytes bounds a single bridged reply (default: 16 MiB).
	MaxReplyBytes int

	// MaxReprChars bounds the rendering of a result value (default: 1000).
	MaxReprChars int

	// Ops are extra controller operations exposed to snippets as
	// host.<name>(...args). Each session gets its own bridged channel per op.
	Ops map[string]bridge.Func

	// Logger receives structured diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Checkpoint:    interrupt.DefaultCheckpoint,
		BufferSize:    1024,
		MaxReplyBytes: 16 << 20,
		MaxReprChars:  1000,
	}
}

// reservedOps are bridged functions every session registers itself.
var reservedOps = map[string]bool{opStdin: true}

// Validate checks the configuration.
// Returns ErrConfiguration if any field is invalid.
func (c *Config) Validate() error {
	var invalid []string

	if c.Checkpoint <= 0 {
		invalid = append(invalid, "Checkpoint must be positive")
	}
	if c.BufferSize < 0 {
		invalid = append(invalid, "BufferSize must not be negative")
	}
	if c.MaxReplyBytes < 0 {
		invalid = append(invalid, "MaxReplyBytes must not be negative")
	}
	for name, fn := range c.Ops {
		if reservedOps[name] {
			invalid = append(invalid, fmt.Sprintf("op %q is reserved", name))
		}
		if fn == nil {
			invalid = append(invalid, fmt.Sprintf("op %q has no function", name))
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", fault.ErrConfiguration, strings.Join(invalid, ", "))
	}
	return nil
}

func (c *Config) bridgeConfig() bridge.Config {
	return bridge.Config{
		BufferSize:    c.BufferSize,
		MaxReplyBytes: c.MaxReplyBytes,
		Checkpoint:    c.Checkpoint,
		Mailbox:       bridge.DefaultConfig().Mailbox,
		Logger:        c.Logger,
	}
}

func (c *Config) guestConfig() guest.Config {
	return guest.Config{
		MaxReprChars: c.MaxReprChars,
		Checkpoint:   c.Checkpoint,
	}
}
