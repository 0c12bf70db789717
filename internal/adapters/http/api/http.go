// Package api serves the status endpoints of a scheduled analyzer.
package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

// Provider exposes the outcome of the most recent runs.
type Provider interface {
	// Latest returns the newest successful run's report and metrics, or nils.
	Latest() (*report.Report, prometheus.Gatherer)
	// Runs returns how many runs have completed, successful or not.
	Runs() int
	// LastError returns the error of the most recent run, if it failed.
	LastError() error
}

// Server wires the status routes.
type Server struct {
	provider Provider
	logger   logger.Logger
	requests atomic.Int64
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets a custom logger for request logging.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a status server backed by p.
func NewServer(p Provider, opts ...Option) *Server {
	s := &Server{provider: p}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.LoggingMiddleware(s.HandleHealth, "healthz"))
	mux.HandleFunc("GET /report", s.LoggingMiddleware(s.HandleReport, "report"))
	mux.HandleFunc("GET /metrics", s.LoggingMiddleware(s.HandleMetrics, "metrics"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
