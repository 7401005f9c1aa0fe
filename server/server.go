// Package server exposes the minimal HTTP/SSE transport this platform needs: a
// job progress stream and a chat message stream. Everything else (auth,
// CRUD over documents/templates/collections, the broader REST API) is an
// external collaborator and is deliberately not built here. Uses gorilla/mux
// routing and a resource-path convention, pared down to what this surface
// actually needs.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lookatitude/docintel/chat"
	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/docmatcher"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/o11y"
	"github.com/lookatitude/docintel/pipeline"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns conservative read/shutdown timeouts and no write
// deadline: SSE responses are long-lived and must not be cut off.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 30 * time.Second,
	}
}

// SessionLoader resolves a chat session id into the session record plus
// everything chat.Respond needs about its attached documents: the
// docmatcher candidates for comparison-entity matching and a
// documentID -> filename map for citation rendering. The composition root
// backs this with storage/postgres's chat and document repositories.
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) (domain.ChatSession, []docmatcher.Document, map[string]string, error)
}

// Server is the minimal progress/chat SSE transport.
type Server struct {
	config Config
	router *mux.Router
	http   *http.Server

	tracker  *pipeline.Tracker
	jobs     pipeline.JobStateStore
	chatDeps chat.Deps
	sessions SessionLoader
	health   *o11y.HealthRegistry
}

// NewServer wires the job tracker, job store, chat dependencies, and health
// registry into a router. health may be nil, in which case /health reports
// healthy unconditionally.
func NewServer(cfg Config, tracker *pipeline.Tracker, jobs pipeline.JobStateStore, chatDeps chat.Deps, sessions SessionLoader, health *o11y.HealthRegistry) *Server {
	s := &Server{
		config:   cfg,
		router:   mux.NewRouter(),
		tracker:  tracker,
		jobs:     jobs,
		chatDeps: chatDeps,
		sessions: sessions,
		health:   health,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}/events", s.handleJobEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/chat/sessions/{sessionID}/messages", s.handleChatMessage).Methods(http.MethodPost)
}

// requestIDMiddleware extracts the caller's X-Request-Id or mints a new one,
// attaches it to the request context (core.WithRequestID) alongside a logger
// that tags every subsequent log line with it, and echoes it back on the
// response so a caller can correlate its own logs with ours.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := core.WithRequestID(r.Context(), id)
		logger := o11y.FromContext(ctx).With("request_id", id)
		ctx = o11y.WithLogger(ctx, logger)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logger.Info(ctx, "request handled", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within config.ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.health == nil {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		return
	}

	results := s.health.CheckAll(r.Context())
	status := o11y.Healthy
	for _, res := range results {
		if res.Status == o11y.Unhealthy {
			status = o11y.Unhealthy
			break
		}
		if res.Status == o11y.Degraded {
			status = o11y.Degraded
		}
	}
	if status != o11y.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(healthResponse{Status: status, Components: results})
}

type healthResponse struct {
	Status     o11y.HealthStatus   `json:"status"`
	Components []o11y.HealthResult `json:"components,omitempty"`
}
