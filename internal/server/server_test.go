package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itsmostafa/goconsole/internal/bridge"
	"github.com/itsmostafa/goconsole/internal/console"
	"github.com/itsmostafa/goconsole/internal/fault"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	config := console.DefaultConfig()
	config.Checkpoint = 5 * time.Millisecond
	config.Ops = map[string]bridge.Func{
		"echo": func(ctx context.Context, args json.RawMessage) (any, error) {
			var in []string
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return strings.Join(in, " "), nil
		},
	}
	ts := httptest.NewServer(New(config, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if got := resp.Header.Get("Cross-Origin-Opener-Policy"); got != "same-origin" {
		t.Errorf("COOP header = %q", got)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until one of the given type arrives and returns
// every frame read.
func readUntil(t *testing.T, ws *websocket.Conn, frameType string) []ServerFrame {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var frames []ServerFrame
	for {
		var frame ServerFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("ReadJSON() error: %v (frames so far: %+v)", err, frames)
		}
		frames = append(frames, frame)
		if frame.Type == frameType {
			return frames
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, frame ClientFrame) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
}

func TestWebSocket_Exec(t *testing.T) {
	ws := dial(t, newTestServer(t))

	send(t, ws, ClientFrame{Type: FrameExec, Code: "1+1"})
	frames := readUntil(t, ws, FrameResult)
	last := frames[len(frames)-1]
	if last.Value != "2" {
		t.Errorf("result = %q, want 2", last.Value)
	}

	// globals persist within the connection
	send(t, ws, ClientFrame{Type: FrameExec, Code: `var who = host.echo("a", "b"); print(who); who.length`})
	frames = readUntil(t, ws, FrameResult)
	var stdout []string
	for _, f := range frames {
		if f.Type == FrameStdout {
			stdout = append(stdout, f.Text)
		}
	}
	if len(stdout) != 1 || stdout[0] != "a b" {
		t.Errorf("stdout frames = %q", stdout)
	}
	if last := frames[len(frames)-1]; last.Value != "3" {
		t.Errorf("result = %q, want 3", last.Value)
	}
}

func TestWebSocket_SyntaxError(t *testing.T) {
	ws := dial(t, newTestServer(t))

	send(t, ws, ClientFrame{Type: FrameExec, Code: "def f(:"})
	frames := readUntil(t, ws, FrameError)
	last := frames[len(frames)-1]
	if last.Error == nil || last.Error.Kind != fault.KindSyntax {
		t.Fatalf("error frame = %+v", last)
	}
	for _, f := range frames {
		if f.Type == FrameSyntaxOK || f.Type == FrameStdout {
			t.Errorf("unexpected frame %+v", f)
		}
	}
}

func TestWebSocket_Stdin(t *testing.T) {
	ws := dial(t, newTestServer(t))

	send(t, ws, ClientFrame{Type: FrameExec, Code: `input("name? ").toUpperCase()`})
	frames := readUntil(t, ws, FrameStdinRequest)
	if prompt := frames[len(frames)-1].Prompt; prompt != "name? " {
		t.Errorf("prompt = %q", prompt)
	}

	send(t, ws, ClientFrame{Type: FrameStdin, Text: "ada"})
	frames = readUntil(t, ws, FrameResult)
	if v := frames[len(frames)-1].Value; v != `"ADA"` {
		t.Errorf("result = %q", v)
	}
}

func TestWebSocket_Interrupt(t *testing.T) {
	ws := dial(t, newTestServer(t))

	send(t, ws, ClientFrame{Type: FrameExec, Code: "while (true) {}"})
	readUntil(t, ws, FrameSyntaxOK)

	// a second snippet is rejected while the first runs
	send(t, ws, ClientFrame{Type: FrameExec, Code: "1"})
	frames := readUntil(t, ws, FrameError)
	if kind := frames[len(frames)-1].Error.Kind; kind != fault.KindConfiguration {
		t.Errorf("busy error kind = %q", kind)
	}

	send(t, ws, ClientFrame{Type: FrameInterrupt})
	frames = readUntil(t, ws, FrameError)
	if kind := frames[len(frames)-1].Error.Kind; kind != fault.KindInterrupted {
		t.Errorf("error kind = %q, want InterruptedError", kind)
	}
}

func TestListOps(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/ops")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Cross-Origin-Embedder-Policy"); got != "require-corp" {
		t.Errorf("COEP header = %q", got)
	}
	var body struct {
		Ops []string `json:"ops"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Ops) != 1 || body.Ops[0] != "echo" {
		t.Errorf("ops = %q", body.Ops)
	}
}

func TestWebSocket_UnrequestedStdinDropped(t *testing.T) {
	ws := dial(t, newTestServer(t))

	send(t, ws, ClientFrame{Type: FrameStdin, Text: "early"})
	send(t, ws, ClientFrame{Type: FrameExec, Code: "1"})
	readUntil(t, ws, FrameResult)

	send(t, ws, ClientFrame{Type: FrameExec, Code: `input("? ")`})
	readUntil(t, ws, FrameStdinRequest)
	send(t, ws, ClientFrame{Type: FrameStdin, Text: "late"})

	frames := readUntil(t, ws, FrameResult)
	if v := frames[len(frames)-1].Value; v != `"late"` {
		t.Errorf("result = %q, want the answer sent after the request", v)
	}
}
