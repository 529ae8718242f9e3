package console

import (
	"encoding/json"
	"strings"

	"github.com/itsmostafa/goconsole/internal/bridge"
	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/stream"
)

const opStdin = "stdin"

// bridgeHost is the guest.Host of one session: every operation crosses to
// the controller through the session's bridge.
type bridgeHost struct {
	caller *bridge.Caller
	ops    []string
}

func (h *bridgeHost) Write(kind stream.Kind, text string) error {
	return h.caller.Notify(string(kind), text)
}

func (h *bridgeHost) ReadLine(prompt string) (string, error) {
	raw, err := h.caller.Call(opStdin, prompt)
	if err != nil {
		return "", err
	}
	var line string
	if err := json.Unmarshal(raw, &line); err != nil {
		return "", fault.Protocol("stdin reply is not a string: %v", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func (h *bridgeHost) Call(op string, args []any) (any, error) {
	raw, err := h.caller.Call(op, args)
	if err != nil {
		return nil, err
	}
	var v any
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fault.Protocol("undecodable result from %s: %v", op, err)
	}
	return v, nil
}

func (h *bridgeHost) Ops() []string { return h.ops }
