package guest

import (
	"errors"
	"strings"

	"github.com/dop251/goja"

	"github.com/itsmostafa/goconsole/internal/fault"
)

func syntaxFault(err error) *fault.Error {
	msg := err.Error()
	return fault.Syntax(strings.TrimPrefix(msg, "SyntaxError: "), msg)
}

// convertError classifies an error returned by RunProgram.
func (r *Runtime) convertError(err error) *fault.Error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fault.Interrupted()
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := exc.Error()
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		return &fault.Error{
			Kind:    fault.KindRuntime,
			Message: msg,
			Trace:   trimTrace(exc.String()),
		}
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return syntaxFault(err)
	}
	return fault.From(err)
}

// trimTrace drops native frames (the bridge builtins) from a goja stack
// rendering, leaving only guest frames.
func trimTrace(trace string) string {
	lines := strings.Split(strings.TrimRight(trace, "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		frame := strings.TrimSpace(line)
		if frame == "at native" || (strings.HasPrefix(frame, "at ") && strings.HasSuffix(frame, "(native)")) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
