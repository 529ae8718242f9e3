package console

// State is the lifecycle position of a Session.
type State int

const (
	StateCreated State = iota
	StateValidating
	StateSyntaxError
	StateRunning
	StateSucceeded
	StateFailed
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValidating:
		return "validating"
	case StateSyntaxError:
		return "syntax-error"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateSyntaxError, StateSucceeded, StateFailed, StateInterrupted:
		return true
	}
	return false
}
