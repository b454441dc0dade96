// Package api exposes the query pipeline and conversation history over
// HTTP/JSON.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/badreddinehallia/veille/internal/rag"
)

// QueryRunner executes one query turn. Implemented by *rag.Pipeline.
type QueryRunner interface {
	Query(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// Pinger reports database reachability for the readiness probe.
// Implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the service.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// ServerConfig carries the dependencies of NewServer.
type ServerConfig struct {
	Pipeline      QueryRunner
	Conversations ConversationReader
	DB            Pinger
	Logger        *slog.Logger
}

// NewServer wires all routes. Pipeline, Conversations and Logger are
// required; DB may be nil, in which case /ready degrades to liveness.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Conversations == nil {
		return nil, errors.New("conversation reader is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mux := http.NewServeMux()
	s := &Server{mux: mux, logger: cfg.Logger}

	queries := &queryHandler{pipeline: cfg.Pipeline, logger: cfg.Logger}
	conversations := &conversationHandler{store: cfg.Conversations, logger: cfg.Logger}
	health := &healthHandler{db: cfg.DB}

	mux.HandleFunc("POST /api/query", queries.query)
	mux.HandleFunc("GET /api/conversations", conversations.list)
	mux.HandleFunc("GET /api/conversations/{id}/messages", conversations.messages)
	mux.HandleFunc("GET /health", health.live)
	mux.HandleFunc("GET /ready", health.ready)

	return s, nil
}

// ServeHTTP applies the middleware stack: recovery outermost so it
// catches panics from the logging layer too.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var handler http.Handler = s.mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

// Run serves until ctx is canceled, then drains in-flight requests.
// WriteTimeout is generous because a turn waits on several model calls.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
