package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except the probes) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/health", instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /v1/ready", instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /v1/events/stats", instrument("event-stats", http.HandlerFunc(s.handleEventStats)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s.RecoveryMiddleware(AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /v1/ready. It runs every check and answers 503
// when any fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "check", c.name, "err", err)
			results[c.name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}

// handleEventStats handles GET /v1/events/stats.
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.stats.Counts(r.Context())
	if err != nil {
		s.logger.Error("failed to get event stats", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get event stats")
		return
	}
	if counts == nil {
		counts = model.DayCounts{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": counts})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
