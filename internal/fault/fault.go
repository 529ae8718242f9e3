// Package fault defines the error taxonomy shared by every layer of the
// console: the bridge, the guest runtime, and execution sessions.
//
// Errors crossing the context boundary are represented as a tagged variant
// (kind, message, optional trace) rather than as language specific exception
// types, so they survive serialization unchanged.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindSyntax is a compile failure detected before the snippet runs.
	KindSyntax Kind = "SyntaxError"
	// KindRuntime is an uncaught guest exception.
	KindRuntime Kind = "RuntimeError"
	// KindInterrupted is a cancellation requested through the interrupt flag.
	KindInterrupted Kind = "InterruptedError"
	// KindBridgeProtocol is an undecodable, mismatched or oversized bridged reply.
	KindBridgeProtocol Kind = "BridgeProtocolError"
	// KindConfiguration is misuse of the session contract.
	KindConfiguration Kind = "ConfigurationError"
)

// Sentinel errors for errors.Is checks, one per Kind.
var (
	ErrSyntax         = errors.New("syntax error")
	ErrRuntime        = errors.New("runtime error")
	ErrInterrupted    = errors.New("interrupted")
	ErrBridgeProtocol = errors.New("bridge protocol error")
	ErrConfiguration  = errors.New("configuration error")
)

var sentinels = map[Kind]error{
	KindSyntax:         ErrSyntax,
	KindRuntime:        ErrRuntime,
	KindInterrupted:    ErrInterrupted,
	KindBridgeProtocol: ErrBridgeProtocol,
	KindConfiguration:  ErrConfiguration,
}

// Error is a classified failure.
//
// Kind is one of the Kind constants for failures produced locally, but may
// hold any guest error name (TypeError, ReferenceError, ...) when it was
// reconstructed from a remote reply; Is still matches those against
// ErrRuntime.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Trace is the rendered diagnostic including the stack, if any.
	Trace string `json:"trace,omitempty"`
}

// New returns an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error returns "Kind: message".
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Render returns the diagnostic shown to a user: the trace when present,
// otherwise Error().
func (e *Error) Render() string {
	if e.Trace != "" {
		return e.Trace
	}
	return e.Error()
}

// Is reports whether target is the sentinel for this error's kind.
// Unknown kinds are treated as runtime errors.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok {
		return target == s
	}
	return target == ErrRuntime
}

// Syntax returns a SyntaxError.
func Syntax(message, trace string) *Error {
	return &Error{Kind: KindSyntax, Message: message, Trace: trace}
}

// Interrupted returns the cancellation failure.
func Interrupted() *Error {
	return &Error{Kind: KindInterrupted, Message: "execution interrupted"}
}

// Protocol returns a BridgeProtocolError.
func Protocol(format string, args ...any) *Error {
	return New(KindBridgeProtocol, format, args...)
}

// Configuration returns a ConfigurationError.
func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

// From converts any error into an *Error. Errors that already carry a kind
// are returned as is; anything else becomes a RuntimeError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindRuntime, Message: err.Error()}
}
