package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/goconsole/internal/console"
)

var checkpoint time.Duration
var bufferSize int
var maxReply int
var logLevel string
var fsRoot string

// registerConsoleFlags adds the console flags to cmd and every subcommand.
// Defaults fall back to GOCONSOLE_* environment variables.
func registerConsoleFlags(cmd *cobra.Command) {
	defaults := console.DefaultConfig()
	flags := cmd.PersistentFlags()

	flags.DurationVar(&checkpoint, "checkpoint", envDuration("GOCONSOLE_CHECKPOINT", defaults.Checkpoint),
		"Interval at which running snippets poll for interrupts")
	flags.IntVar(&bufferSize, "buffer-size", envInt("GOCONSOLE_BUFFER_SIZE", defaults.BufferSize),
		"Initial shared buffer size per bridged function, in bytes")
	flags.IntVar(&maxReply, "max-reply", envInt("GOCONSOLE_MAX_REPLY", defaults.MaxReplyBytes),
		"Largest bridged reply accepted, in bytes (0 = unlimited)")
	flags.StringVar(&logLevel, "log-level", envString("GOCONSOLE_LOG_LEVEL", "warn"),
		"Log level (debug, info, warn, error)")
	flags.StringVar(&fsRoot, "root", envString("GOCONSOLE_ROOT", "."),
		"Directory readable through host.readFile, host.listDir and friends")
}

// consoleConfig builds the console configuration from flags.
func consoleConfig() (console.Config, error) {
	logger, err := newLogger(logLevel)
	if err != nil {
		return console.Config{}, err
	}
	ops, err := hostOps(fsRoot)
	if err != nil {
		return console.Config{}, err
	}
	config := console.DefaultConfig()
	config.Checkpoint = checkpoint
	config.BufferSize = bufferSize
	config.MaxReplyBytes = maxReply
	config.Ops = ops
	config.Logger = logger
	return config, config.Validate()
}

func newConsole() (*console.Console, error) {
	config, err := consoleConfig()
	if err != nil {
		return nil, err
	}
	return console.New(config)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
