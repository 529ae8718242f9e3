// Package guest runs JavaScript snippets in an embedded goja runtime owned
// by a single interpreter goroutine.
//
// All guest I/O goes through a Host, whose implementation bridges to the
// controller context. Builtins that need an answer (input, host.*) block the
// interpreter goroutine until the controller replies.
package guest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/interrupt"
	"github.com/itsmostafa/goconsole/internal/stream"
)

// Filename is the source name reported in diagnostics.
const Filename = "<console>"

const maxSleepMillis = float64(24 * time.Hour / time.Millisecond)

// Config holds configuration for a Runtime.
type Config struct {
	// MaxReprChars bounds the rendering of a result value (default: 1000).
	MaxReprChars int

	// Checkpoint is the interval at which a running snippet polls its
	// interrupt flag (default: 50ms). Smaller values cancel faster at the
	// cost of more wakeups.
	Checkpoint time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxReprChars: 1000,
		Checkpoint:   interrupt.DefaultCheckpoint,
	}
}

// Host is the guest's view of the controller for one run.
type Host interface {
	// Write forwards one output chunk.
	Write(kind stream.Kind, text string) error
	// ReadLine blocks until the controller supplies a line of input.
	ReadLine(prompt string) (string, error)
	// Call invokes a controller operation by name.
	Call(op string, args []any) (any, error)
	// Ops lists the operations Call accepts.
	Ops() []string
}

// errIdle is thrown by builtins that run while no snippet is.
var errIdle = fault.New(fault.KindRuntime, "no snippet is running")

// Runtime wraps a goja VM. Globals persist across runs. A Runtime must only
// be used from one goroutine at a time; Interpreter provides that goroutine.
type Runtime struct {
	vm     *goja.Runtime
	config Config

	host Host
	flag *interrupt.Flag

	// ownDescriptor is the original Object.getOwnPropertyDescriptor,
	// captured before any snippet can replace it.
	ownDescriptor goja.Callable
}

// NewRuntime creates a runtime with the console builtins installed.
func NewRuntime(config Config) (*Runtime, error) {
	if config.MaxReprChars <= 0 {
		config.MaxReprChars = DefaultConfig().MaxReprChars
	}
	if config.Checkpoint <= 0 {
		config.Checkpoint = interrupt.DefaultCheckpoint
	}
	r := &Runtime{vm: goja.New(), config: config}
	if err := r.setupBuiltins(); err != nil {
		return nil, fmt.Errorf("failed to setup builtins: %w", err)
	}
	desc, ok := goja.AssertFunction(r.vm.Get("Object").ToObject(r.vm).Get("getOwnPropertyDescriptor"))
	if !ok {
		return nil, fmt.Errorf("Object.getOwnPropertyDescriptor is not a function")
	}
	r.ownDescriptor = desc
	return r, nil
}

// Compile parses src. Failures are returned as SyntaxError.
func Compile(src string) (*goja.Program, error) {
	prog, err := goja.Compile(Filename, src, false)
	if err != nil {
		return nil, syntaxFault(err)
	}
	return prog, nil
}

// IsIncomplete reports whether src fails to compile only because the input
// ended early, so a front end should ask for a continuation line.
func IsIncomplete(src string) bool {
	_, err := goja.Compile(Filename, src, false)
	return err != nil && strings.Contains(err.Error(), "Unexpected end of input")
}

// Run executes prog with host bound to the builtins and returns the short
// rendering of its completion value ("" for undefined). The flag is polled
// every checkpoint; once it is set the run stops with an InterruptedError.
func (r *Runtime) Run(prog *goja.Program, host Host, flag *interrupt.Flag) (result string, err error) {
	r.host, r.flag = host, flag
	defer func() { r.host, r.flag = nil, nil }()

	if err := r.setupHost(host.Ops()); err != nil {
		return "", fmt.Errorf("failed to setup host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		flag.Watch(ctx, r.config.Checkpoint, func() {
			r.vm.Interrupt(fault.Interrupted())
		})
	}()
	defer func() {
		cancel()
		<-watching
		r.vm.ClearInterrupt()
	}()

	defer func() {
		if p := recover(); p != nil {
			err = fault.New(fault.KindRuntime, "internal error: %v", p)
		}
	}()

	val, runErr := r.vm.RunProgram(prog)
	if runErr != nil {
		return "", r.convertError(runErr)
	}
	return r.Render(val), nil
}

// setupBuiltins installs print, input, sleep and console.
func (r *Runtime) setupBuiltins() error {
	printFunc := func(call goja.FunctionCall) goja.Value {
		return r.write(stream.Stdout, r.joinArgs(call.Arguments)+"\n")
	}
	if err := r.vm.Set("print", printFunc); err != nil {
		return fmt.Errorf("failed to set print: %w", err)
	}

	inputFunc := func(call goja.FunctionCall) goja.Value {
		prompt := ""
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			prompt = arg.String()
		}
		if r.host == nil {
			return r.throw(errIdle)
		}
		line, err := r.host.ReadLine(prompt)
		if err != nil {
			return r.throw(err)
		}
		return r.vm.ToValue(line)
	}
	if err := r.vm.Set("input", inputFunc); err != nil {
		return fmt.Errorf("failed to set input: %w", err)
	}

	sleepFunc := func(call goja.FunctionCall) goja.Value {
		if r.flag == nil {
			return r.throw(errIdle)
		}
		ms := call.Argument(0).ToFloat()
		if math.IsNaN(ms) || ms < 0 {
			ms = 0
		}
		ms = min(ms, maxSleepMillis)
		if err := r.flag.Sleep(time.Duration(ms*float64(time.Millisecond)), r.config.Checkpoint); err != nil {
			return r.throw(err)
		}
		return goja.Undefined()
	}
	if err := r.vm.Set("sleep", sleepFunc); err != nil {
		return fmt.Errorf("failed to set sleep: %w", err)
	}

	console := r.vm.NewObject()
	streams := map[string]stream.Kind{
		"log":   stream.Stdout,
		"info":  stream.Stdout,
		"debug": stream.Stdout,
		"warn":  stream.Stderr,
		"error": stream.Stderr,
	}
	for name, kind := range streams {
		fn := func(call goja.FunctionCall) goja.Value {
			return r.write(kind, r.joinArgs(call.Arguments)+"\n")
		}
		if err := console.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}
	return r.vm.Set("console", console)
}

// setupHost exposes the controller operations as host.<op>(...).
func (r *Runtime) setupHost(ops []string) error {
	obj := r.vm.NewObject()
	for _, op := range ops {
		fn := func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			if r.host == nil {
				return r.throw(errIdle)
			}
			res, err := r.host.Call(op, args)
			if err != nil {
				return r.throw(err)
			}
			return r.vm.ToValue(res)
		}
		if err := obj.Set(op, fn); err != nil {
			return err
		}
	}
	return r.vm.Set("host", obj)
}

func (r *Runtime) write(kind stream.Kind, text string) goja.Value {
	if r.host == nil {
		return r.throw(errIdle)
	}
	if err := r.host.Write(kind, text); err != nil {
		return r.throw(err)
	}
	return goja.Undefined()
}

func (r *Runtime) joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if s, ok := arg.Export().(string); ok {
			parts[i] = s
			continue
		}
		parts[i] = r.inspect(arg)
	}
	return strings.Join(parts, " ")
}

// throw raises err inside the guest. Interrupts are not catchable: they
// stop the VM at its next instruction instead of throwing.
func (r *Runtime) throw(err error) goja.Value {
	if errors.Is(err, fault.ErrInterrupted) {
		r.vm.Interrupt(fault.Interrupted())
		return goja.Undefined()
	}
	panic(r.newError(fault.From(err)))
}

// newError builds a guest Error carrying the kind and message of fe.
func (r *Runtime) newError(fe *fault.Error) goja.Value {
	obj, err := r.vm.New(r.vm.Get("Error"), r.vm.ToValue(fe.Message))
	if err != nil {
		return r.vm.NewGoError(fe)
	}
	_ = obj.Set("name", string(fe.Kind))
	if fe.Trace != "" {
		_ = obj.Set("remoteTrace", fe.Trace)
	}
	return obj
}
