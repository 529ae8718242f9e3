// Package stream delivers guest output to the handlers bound by a session.
package stream

import (
	"strings"
	"sync"
)

// Kind names an output stream.
type Kind string

const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
)

// Event is one guest write, split at its trailing newline.
type Event struct {
	Stream  Kind
	Text    string
	Newline bool
}

// Handler consumes stream events. It may be called many times per snippet
// and must return promptly.
type Handler func(Event)

// Split turns a raw write into an Event, removing at most one trailing
// newline so consumers can decide spacing without rescanning.
func Split(kind Kind, raw string) Event {
	text, newline := strings.CutSuffix(raw, "\n")
	return Event{Stream: kind, Text: text, Newline: newline}
}

// Mux forwards writes to the handler bound for each stream. It is
// unbuffered: Write calls the handler before returning, so events reach
// handlers in the order they were written.
type Mux struct {
	mu       sync.Mutex
	handlers map[Kind]Handler
}

// NewMux returns a Mux with no handlers bound.
func NewMux() *Mux {
	return &Mux{handlers: make(map[Kind]Handler)}
}

// Bind sets the handler for kind, replacing any previous one. A nil handler
// discards the stream.
func (m *Mux) Bind(kind Kind, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, kind)
		return
	}
	m.handlers[kind] = h
}

// Write splits raw and delivers it.
func (m *Mux) Write(kind Kind, raw string) {
	m.mu.Lock()
	h := m.handlers[kind]
	m.mu.Unlock()
	if h != nil {
		h(Split(kind, raw))
	}
}

// Reset drops every handler.
func (m *Mux) Reset() {
	m.mu.Lock()
	clear(m.handlers)
	m.mu.Unlock()
}
