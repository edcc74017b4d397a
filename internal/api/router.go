// Package api is the HTTP facade: request decoding, validation, and the
// mapping between coordinator results and JSON responses. It owns no state
// and talks to the rest of the service only through SessionService.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"

	"github.com/codexec/codexec/internal/metrics"
)

type Server struct {
	service SessionService
	metrics *metrics.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

func NewServer(svc SessionService, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		service: svc,
		metrics: m,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.requestIDMiddleware(s.loggingMiddleware(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/environments", s.handleEnvironments)
	s.mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/v1/sessions/{id}/execute", s.handleExecute)
	s.mux.HandleFunc("GET /api/v1/sessions/{id}/stats", s.handleStats)
	s.mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleStopSession)
	s.mux.HandleFunc("POST /api/v1/execute", s.handleEphemeralExecute)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
