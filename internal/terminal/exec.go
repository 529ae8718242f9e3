package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/itsmostafa/goconsole/internal/console"
	"github.com/itsmostafa/goconsole/internal/stream"
)

// LineReader reads one line of user input after showing prompt.
// *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Streams attaches a session to a terminal.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer

	// Stdin answers input() calls. Nil leaves stdin unbound, so input()
	// fails inside the snippet.
	Stdin LineReader

	// Interrupts requests an interrupt of the running snippet on every
	// receive.
	Interrupts <-chan os.Signal
}

// Execute runs src as one session and blocks until it settles.
func Execute(ctx context.Context, c *console.Console, src string, streams Streams) (string, error) {
	s := c.BeginExecution(src)

	if err := s.BindStdout(writeTo(streams.Stdout)); err != nil {
		return "", err
	}
	if err := s.BindStderr(writeTo(streams.Stderr)); err != nil {
		return "", err
	}
	if streams.Stdin != nil {
		if err := s.BindStdin(readFrom(streams.Stdin, s)); err != nil {
			return "", err
		}
	}
	if err := s.Start(); err != nil {
		return "", err
	}

	type outcome struct {
		value string
		err   error
	}
	settled := make(chan outcome, 1)
	go func() {
		value, err := s.AwaitResult(context.Background())
		settled <- outcome{value, err}
	}()

	for {
		select {
		case o := <-settled:
			return o.value, o.err
		case <-streams.Interrupts:
			s.RequestInterrupt()
		case <-ctx.Done():
			s.RequestInterrupt()
			o := <-settled
			return o.value, o.err
		}
	}
}

func writeTo(w io.Writer) stream.Handler {
	if w == nil {
		w = io.Discard
	}
	return func(ev stream.Event) {
		if ev.Newline {
			fmt.Fprintln(w, ev.Text)
			return
		}
		fmt.Fprint(w, ev.Text)
	}
}

// readFrom prompts on lines for every input() call. Ctrl+C at the prompt
// interrupts the session; the reply is held back until the session is
// released so the snippet observes the interrupt rather than a read error.
func readFrom(lines LineReader, s *console.Session) console.StdinHandler {
	return func(ctx context.Context, prompt string) (string, error) {
		line, err := lines.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			s.RequestInterrupt()
			<-ctx.Done()
			return "", err
		}
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return line, nil
	}
}
