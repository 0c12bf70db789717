package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status    string     `json:"status"`
	Runs      int        `json:"runs"`
	Requests  int64      `json:"requests"`
	LastRunID string     `json:"last_run_id,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Verdict   string     `json:"verdict,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// HandleHealth handles GET /healthz. It always answers 200 while the
// process is up and describes the latest run.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Runs:     s.provider.Runs(),
		Requests: s.requests.Load(),
	}
	if rep, _ := s.provider.Latest(); rep != nil {
		at := rep.GeneratedAt
		resp.LastRunID = rep.RunID
		resp.LastRunAt = &at
		resp.Verdict = string(rep.Compliance.Verdict)
	}
	if err := s.provider.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleReport handles GET /report with the latest report, or 404 before the first run.
func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, _ := s.provider.Latest()
	if rep == nil {
		writeError(w, http.StatusNotFound, "not_found", ErrNoReport)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

var emptyRegistry = prometheus.NewRegistry()

// HandleMetrics handles GET /metrics with the latest run's registry.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	_, g := s.provider.Latest()
	if g == nil {
		g = emptyRegistry
	}
	promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
