package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
)

type fakeBackend struct {
	status   Status
	passes   []eventstore.PassSummary
	checkErr error
	checks   []string
	limit    int
}

func (f *fakeBackend) Status() Status { return f.status }

func (f *fakeBackend) TriggerCheck(_ context.Context, chatID string) error {
	f.checks = append(f.checks, chatID)
	return f.checkErr
}

func (f *fakeBackend) History(limit int) []eventstore.PassSummary {
	f.limit = limit
	return f.passes
}

func (f *fakeBackend) Pass(id string) (eventstore.PassSummary, bool) {
	for _, p := range f.passes {
		if p.PassID == id {
			return p, true
		}
	}
	return eventstore.PassSummary{}, false
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
		want   HealthStatus
	}{
		{name: "running", status: Status{State: "running"}, code: http.StatusOK, want: HealthStatusHealthy},
		{name: "stopping", status: Status{State: "stopping"}, code: http.StatusServiceUnavailable, want: HealthStatusUnhealthy},
		{
			name:   "last pass failed",
			status: Status{State: "running", LastPass: &eventstore.PassSummary{Status: "failed", Error: "bad credentials"}},
			code:   http.StatusOK,
			want:   HealthStatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", &fakeBackend{status: tt.status}, nil, nil)
			w := serve(t, s, http.MethodGet, "/healthz", "")
			assert.Equal(t, tt.code, w.Code)

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, 2)
		})
	}
}

func TestStatus(t *testing.T) {
	next := time.Date(2026, 1, 2, 7, 0, 0, 0, time.UTC)
	b := &fakeBackend{status: Status{State: "running", Version: "v1.2.3", NextRun: &next, TargetRepos: []string{"me/app"}}}
	s := NewServer(":0", b, nil, nil)

	w := serve(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Data    Status `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "v1.2.3", resp.Data.Version)
	assert.Equal(t, []string{"me/app"}, resp.Data.TargetRepos)
	require.NotNil(t, resp.Data.NextRun)
	assert.True(t, next.Equal(*resp.Data.NextRun))
}

func TestPasses(t *testing.T) {
	b := &fakeBackend{passes: []eventstore.PassSummary{{PassID: "p2", Reviewed: 1}, {PassID: "p1"}}}
	s := NewServer(":0", b, nil, nil)

	w := serve(t, s, http.MethodGet, "/passes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultPassLimit, b.limit)

	serve(t, s, http.MethodGet, "/passes?limit=5000", "")
	assert.Equal(t, maxPassLimit, b.limit)

	w = serve(t, s, http.MethodGet, "/passes?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, s, http.MethodGet, "/passes/p2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pass_id":"p2"`)

	w = serve(t, s, http.MethodGet, "/passes/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheck(t *testing.T) {
	b := &fakeBackend{}
	s := NewServer(":0", b, nil, nil)

	w := serve(t, s, http.MethodPost, "/check", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = serve(t, s, http.MethodPost, "/check", `{"chat_id":"99"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"", "99"}, b.checks)

	w = serve(t, s, http.MethodPost, "/check", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	b.checkErr = ferrors.ValidationError("a review pass is already running").Build()
	w = serve(t, s, http.MethodPost, "/check", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(t, s, http.MethodGet, "/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.IncAssistantCommand("start")

	s := NewServer(":0", &fakeBackend{}, reg, nil)
	w := serve(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prbot_")

	noMetrics := NewServer(":0", &fakeBackend{}, nil, nil)
	w = serve(t, noMetrics, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
