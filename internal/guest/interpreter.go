package guest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("guest: interpreter closed")

type job struct {
	fn   func(*Runtime)
	done chan struct{}
	err  error
}

// Interpreter is the interpreter context: one goroutine that owns a Runtime
// and runs jobs on it one at a time, in submission order.
type Interpreter struct {
	rt   *Runtime
	jobs chan *job
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

// NewInterpreter creates the runtime and starts its goroutine.
func NewInterpreter(config Config) (*Interpreter, error) {
	rt, err := NewRuntime(config)
	if err != nil {
		return nil, err
	}
	i := &Interpreter{
		rt:   rt,
		jobs: make(chan *job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go i.loop()
	return i, nil
}

func (i *Interpreter) loop() {
	defer close(i.done)
	for {
		select {
		case <-i.quit:
			return
		case j := <-i.jobs:
			i.run(j)
		}
	}
}

// run executes one job. A panicking job fails with an error instead of
// taking the goroutine down.
func (i *Interpreter) run(j *job) {
	defer close(j.done)
	defer func() {
		if p := recover(); p != nil {
			j.err = fmt.Errorf("guest: job panicked: %v", p)
		}
	}()
	j.fn(i.rt)
}

// Do runs fn on the interpreter goroutine and waits for it to finish. If ctx
// ends first Do returns ctx.Err(); a job that already started keeps running.
func (i *Interpreter) Do(ctx context.Context, fn func(*Runtime)) error {
	j := &job{fn: fn, done: make(chan struct{})}
	select {
	case i.jobs <- j:
	case <-i.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete returns completion candidates for line. See Runtime.Complete.
func (i *Interpreter) Complete(ctx context.Context, line string) ([]string, error) {
	out := make(chan []string, 1)
	if err := i.Do(ctx, func(rt *Runtime) {
		out <- rt.Complete(line)
	}); err != nil {
		return nil, err
	}
	return <-out, nil
}

// Close stops the goroutine after the current job and waits for it.
func (i *Interpreter) Close() {
	i.closeOnce.Do(func() { close(i.quit) })
	<-i.done
}
