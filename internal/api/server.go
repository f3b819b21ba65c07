// Package api serves the admin HTTP endpoints: health, status, pass history,
// manual checks and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
)

// Status is the daemon state reported by /status.
type Status struct {
	State          string                  `json:"state"`
	Version        string                  `json:"version"`
	StartedAt      time.Time               `json:"started_at"`
	Uptime         string                  `json:"uptime"`
	NextRun        *time.Time              `json:"next_run,omitempty"`
	Checking       bool                    `json:"checking"`
	TargetRepos    []string                `json:"target_repos,omitempty"`
	IncludePrivate bool                    `json:"include_private"`
	LastPass       *eventstore.PassSummary `json:"last_pass,omitempty"`
}

// Backend is what the admin API reads from and acts on.
type Backend interface {
	Status() Status
	TriggerCheck(ctx context.Context, chatID string) error
	History(limit int) []eventstore.PassSummary
	Pass(id string) (eventstore.PassSummary, bool)
}

// Server represents the admin API server.
type Server struct {
	Addr     string
	backend  Backend
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates the admin server. A nil gatherer disables /metrics.
func NewServer(addr string, backend Backend, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:     addr,
		backend:  backend,
		gatherer: gatherer,
		logger:   logger,
		router:   chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)

	s.router.Get("/passes", s.handleListPasses)
	s.router.Get("/passes/{id}", s.handleGetPass)
	s.router.Post("/check", s.handleCheck)

	if s.gatherer != nil {
		s.router.Handle("/metrics", metrics.HTTPHandler(s.gatherer))
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Admin server listening", slog.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Error writes an error response.
func (s *Server) Error(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Response{Success: false, Error: message})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
