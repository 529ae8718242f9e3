package terminal

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/itsmostafa/goconsole/internal/console"
	"github.com/itsmostafa/goconsole/internal/guest"
)

const (
	promptMain = ">>> "
	promptCont = "... "
)

// Config holds configuration for an interactive session.
type Config struct {
	Console    *console.Console
	Lines      LineReader
	Output     io.Writer
	ErrOutput  io.Writer
	Interrupts <-chan os.Signal
}

// historyAppender is implemented by line readers that keep history.
type historyAppender interface {
	AppendHistory(item string)
}

// Run reads snippets from cfg.Lines and executes them until end of input.
func Run(ctx context.Context, cfg Config) error {
	FormatBanner(cfg.Output, cfg.Console.Ops())

	for {
		src, err := ReadSnippet(cfg.Lines)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			FormatInterrupted(cfg.ErrOutput)
			continue
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		if h, ok := cfg.Lines.(historyAppender); ok {
			h.AppendHistory(src)
		}

		drain(cfg.Interrupts)
		value, err := Execute(ctx, cfg.Console, src, Streams{
			Stdout:     cfg.Output,
			Stderr:     cfg.ErrOutput,
			Stdin:      cfg.Lines,
			Interrupts: cfg.Interrupts,
		})
		if err != nil {
			FormatError(cfg.ErrOutput, err)
		} else {
			FormatResult(cfg.Output, value)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ReadSnippet reads lines until they form a snippet that is not cut short,
// switching to the continuation prompt after the first line.
func ReadSnippet(lines LineReader) (string, error) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := lines.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" || !guest.IsIncomplete(src) {
			return src, nil
		}
	}
}

// drain drops interrupts delivered while no snippet was running.
func drain(c <-chan os.Signal) {
	for {
		select {
		case <-c:
		default:
			return
		}
	}
}
