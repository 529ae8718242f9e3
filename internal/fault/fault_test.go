package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		target error
	}{
		{"syntax", Syntax("bad", ""), ErrSyntax},
		{"interrupted", Interrupted(), ErrInterrupted},
		{"protocol", Protocol("short read"), ErrBridgeProtocol},
		{"configuration", Configuration("late bind"), ErrConfiguration},
		{"guest kind", &Error{Kind: "TypeError", Message: "x"}, ErrRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			wrapped := fmt.Errorf("wrapped: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is on wrapped error = false")
			}
		})
	}

	if errors.Is(Interrupted(), ErrRuntime) {
		t.Error("interrupted error should not match ErrRuntime")
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}

	orig := Syntax("unexpected token", "SyntaxError: unexpected token\n  at 1:1")
	got := From(fmt.Errorf("compile: %w", orig))
	if got != orig {
		t.Errorf("From() = %v, want original error", got)
	}

	plain := From(errors.New("boom"))
	if plain.Kind != KindRuntime || plain.Message != "boom" {
		t.Errorf("From(plain) = %+v", plain)
	}
}

func TestRender(t *testing.T) {
	e := &Error{Kind: KindRuntime, Message: "boom"}
	if e.Render() != "RuntimeError: boom" {
		t.Errorf("Render() = %q", e.Render())
	}
	e.Trace = "Error: boom\n\tat <console>:1:1(1)"
	if e.Render() != e.Trace {
		t.Errorf("Render() = %q, want trace", e.Render())
	}
}
