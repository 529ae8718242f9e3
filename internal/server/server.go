// Package server exposes consoles over websockets, one Console per
// connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/itsmostafa/goconsole/internal/console"
)

// Server serves the websocket console surface.
type Server struct {
	config console.Config
	log    *slog.Logger
	srv    *http.Server
}

// New creates a new Server. Every connection gets a Console built from
// config.
func New(config console.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config: config,
		log:    logger,
	}
}

// Handler returns the routes wrapped in the cross-origin isolation headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ops", s.handleListOps)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return isolationMiddleware(mux)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Starting console server", "addr", addr)
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleListOps(w http.ResponseWriter, r *http.Request) {
	ops := make([]string, 0, len(s.config.Ops))
	for name := range s.config.Ops {
		ops = append(ops, name)
	}
	slices.Sort(ops)
	s.jsonResponse(w, http.StatusOK, map[string]any{"ops": ops})
}

// isolationMiddleware sets the headers a browser needs before it allows
// shared memory in the page.
func isolationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}
