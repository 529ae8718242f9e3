package terminal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/peterh/liner"

	"github.com/itsmostafa/goconsole/internal/console"
)

const historyFile = ".goconsole_history"

// completeTimeout bounds a completion request that waits behind a running
// snippet.
const completeTimeout = 200 * time.Millisecond

// Liner is a line editor with persistent history and tab completion backed
// by the console's globals.
type Liner struct {
	*liner.State
	history string
}

// HistoryPath returns the history file in the user's home directory, or ""
// when there is none.
func HistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFile)
}

// OpenLiner puts the terminal into line editing mode and loads history.
func OpenLiner(c *console.Console, history string) *Liner {
	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	ln.SetMultiLineMode(true)
	ln.SetCompleter(func(line string) []string {
		ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
		defer cancel()
		candidates, err := c.Complete(ctx, line)
		if err != nil {
			return nil
		}
		return candidates
	})

	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	return &Liner{State: ln, history: history}
}

// Close writes history and restores the terminal.
func (l *Liner) Close() error {
	if l.history != "" {
		if f, err := os.Create(l.history); err == nil {
			_, _ = l.WriteHistory(f)
			_ = f.Close()
		}
	}
	return l.State.Close()
}
