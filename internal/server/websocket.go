package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/itsmostafa/goconsole/internal/console"
	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client frame types.
const (
	FrameExec      = "exec"
	FrameStdin     = "stdin"
	FrameInterrupt = "interrupt"
)

// Server frame types.
const (
	FrameStdout       = "stdout"
	FrameStderr       = "stderr"
	FrameStdinRequest = "stdin_request"
	FrameSyntaxOK     = "syntax_ok"
	FrameResult       = "result"
	FrameError        = "error"
)

// ClientFrame is a message sent by the browser.
type ClientFrame struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is a message sent to the browser.
type ServerFrame struct {
	Type    string       `json:"type"`
	Session string       `json:"session,omitempty"`
	Text    string       `json:"text,omitempty"`
	Newline bool         `json:"newline,omitempty"`
	Prompt  string       `json:"prompt,omitempty"`
	Value   string       `json:"value,omitempty"`
	Error   *fault.Error `json:"error,omitempty"`
}

// conn is one websocket connection and the console behind it.
type conn struct {
	id      string
	server  *Server
	console *console.Console
	out     chan ServerFrame
	done    chan struct{}

	mu      sync.Mutex
	current *console.Session
	// pending receives the answer to the outstanding stdin_request, if any.
	pending chan string
	running sync.WaitGroup
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	id := uuid.NewString()
	log := s.log.With("conn", id)

	config := s.config
	config.Logger = log
	c, err := console.New(config)
	if err != nil {
		log.Error("Failed to create console", "error", err)
		_ = ws.WriteJSON(ServerFrame{Type: FrameError, Error: fault.From(err)})
		return
	}
	defer c.Close()

	cn := &conn{
		id:      id,
		server:  s,
		console: c,
		out:     make(chan ServerFrame, 64),
		done:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop
	go func() {
		defer wg.Done()
		failed := false
		for frame := range cn.out {
			if failed {
				continue
			}
			if err := ws.WriteJSON(frame); err != nil {
				log.Error("WebSocket write error", "error", err)
				failed = true
			}
		}
	}()

	// Reader Loop
	for {
		var frame ClientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("WebSocket read error", "error", err)
			}
			break
		}
		cn.handle(frame)
	}

	close(cn.done)
	cn.interrupt()
	cn.running.Wait()
	close(cn.out)
	wg.Wait()
}

func (cn *conn) handle(frame ClientFrame) {
	switch frame.Type {
	case FrameExec:
		cn.exec(frame.Code)
	case FrameStdin:
		cn.mu.Lock()
		reply := cn.pending
		cn.pending = nil
		cn.mu.Unlock()
		if reply == nil {
			cn.server.log.Warn("dropping stdin with no pending read", "conn", cn.id)
			return
		}
		reply <- frame.Text
	case FrameInterrupt:
		cn.interrupt()
	default:
		cn.send(ServerFrame{Type: FrameError, Error: fault.Configuration("unknown frame type %q", frame.Type)})
	}
}

func (cn *conn) exec(code string) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.current != nil {
		cn.send(ServerFrame{Type: FrameError, Error: fault.Configuration("a snippet is already running")})
		return
	}

	s := cn.console.BeginExecution(code)
	sid := s.ID().String()
	_ = s.BindStdout(cn.streamTo(FrameStdout, sid))
	_ = s.BindStderr(cn.streamTo(FrameStderr, sid))
	_ = s.BindStdin(func(ctx context.Context, prompt string) (string, error) {
		reply := make(chan string, 1)
		cn.mu.Lock()
		cn.pending = reply
		cn.mu.Unlock()
		defer func() {
			cn.mu.Lock()
			if cn.pending == reply {
				cn.pending = nil
			}
			cn.mu.Unlock()
		}()

		cn.send(ServerFrame{Type: FrameStdinRequest, Session: sid, Prompt: prompt})
		select {
		case text := <-reply:
			return text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		case <-cn.done:
			return "", errors.New("connection closed")
		}
	})
	if err := s.Start(); err != nil {
		cn.send(ServerFrame{Type: FrameError, Session: sid, Error: fault.From(err)})
		return
	}
	cn.current = s

	cn.running.Add(1)
	go func() {
		defer cn.running.Done()
		ctx := context.Background()
		if err := s.AwaitSyntaxValid(ctx); err == nil {
			cn.send(ServerFrame{Type: FrameSyntaxOK, Session: sid})
		}
		value, err := s.AwaitResult(ctx)

		cn.mu.Lock()
		cn.current = nil
		cn.mu.Unlock()

		if err != nil {
			cn.send(ServerFrame{Type: FrameError, Session: sid, Error: fault.From(err)})
			return
		}
		cn.send(ServerFrame{Type: FrameResult, Session: sid, Value: value})
	}()
}

func (cn *conn) interrupt() {
	cn.mu.Lock()
	s := cn.current
	cn.mu.Unlock()
	if s != nil {
		s.RequestInterrupt()
	}
}

func (cn *conn) streamTo(kind, sid string) stream.Handler {
	return func(ev stream.Event) {
		cn.send(ServerFrame{Type: kind, Session: sid, Text: ev.Text, Newline: ev.Newline})
	}
}

// send queues a frame for the writer loop. The queue stays open until every
// session of the connection has settled.
func (cn *conn) send(frame ServerFrame) {
	cn.out <- frame
}
