package console

import (
	"context"
	"sync"
)

// future is a value that settles exactly once, with a value or an error.
type future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// settle records the outcome. It reports false if the future had already
// settled, in which case the new outcome is dropped.
func (f *future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		settled = true
	})
	return settled
}

// settled reports whether the future has an outcome.
func (f *future[T]) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// await blocks until the future settles or ctx is done.
func (f *future[T]) await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
