package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

const (
	defaultPassLimit = 20
	maxPassLimit     = 200
)

// CheckRequest is the optional body of POST /check.
type CheckRequest struct {
	ChatID string `json:"chat_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.backend.Status()
	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Version:   st.Version,
	}

	daemon := HealthCheck{Name: "daemon", Status: HealthStatusHealthy, Message: st.State}
	if st.State != "running" {
		daemon.Status = HealthStatusUnhealthy
		resp.Status = HealthStatusUnhealthy
	}
	resp.Checks = append(resp.Checks, daemon)

	last := HealthCheck{Name: "last_pass", Status: HealthStatusHealthy, Message: "no pass yet"}
	if st.LastPass != nil {
		last.Message = st.LastPass.Status
		if st.LastPass.Status == "failed" {
			last.Status = HealthStatusDegraded
			last.Message = st.LastPass.Error
			if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
	}
	resp.Checks = append(resp.Checks, last)

	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.Success(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	limit := defaultPassLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPassLimit)
	}
	s.Success(w, http.StatusOK, s.backend.History(limit))
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pass, ok := s.backend.Pass(id)
	if !ok {
		s.Error(w, http.StatusNotFound, "pass not found")
		return
	}
	s.Success(w, http.StatusOK, pass)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if r.Body != nil {
		defer func() { _ = r.Body.Close() }()
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.backend.TriggerCheck(r.Context(), req.ChatID); err != nil {
		code := http.StatusInternalServerError
		if ferrors.HasCategory(err, ferrors.CategoryValidation) {
			code = http.StatusConflict
		}
		s.logger.Warn("Manual check rejected", logfields.Error(err))
		s.Error(w, code, err.Error())
		return
	}
	s.Success(w, http.StatusAccepted, map[string]string{"status": "started"})
}
