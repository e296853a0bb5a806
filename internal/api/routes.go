// Package api provides the HTTP API server of the pitchlog service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	versionHeader      = "X-Pitchlog-Version"
	contentTypeJSON    = "application/json"
	statusSuccess      = "success"
)

// HealthStatus represents the health check response structure.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

// setupRoutes registers every route of the API on mux.
// Reads and health checks are public; writes pass the auth middleware.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	// Ingestion
	mux.HandleFunc("POST /api/v1/events", s.handleIngestEvent)

	// Queries
	mux.HandleFunc("GET /api/v1/matches", s.handleListMatches)
	mux.HandleFunc("GET /api/v1/matches/{match_id}", s.handleGetMatch)
	mux.HandleFunc("GET /api/v1/matches/{match_id}/statistics", s.handleGetMatchStatistics)
	mux.HandleFunc("GET /api/v1/teams/{team}/statistics", s.handleGetTeamStatistics)

	mux.HandleFunc("/", s.handleNotFound)
}

// handlePing responds to liveness checks.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(versionHeader, Version)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady reports readiness after a storage health check.
//
// Response codes:
//   - 200 OK: storage is reachable
//   - 503 Service Unavailable: storage is unhealthy or did not answer in time
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	status, body := http.StatusOK, "ready"

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.deps.Health.HealthCheck(ctx); err != nil {
			s.logger.Error("Storage health check failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)

			status, body = http.StatusServiceUnavailable, "storage unavailable"
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns service status, version and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	w.Header().Set(versionHeader, Version)

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "pitchlog",
		Version:     Version,
		Uptime:      uptime,
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeProblem(w, r, NotFound("The requested resource was not found"))
}

// writeJSON marshals body before writing any header so that an encoding
// failure can still be reported as a 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	correlationID := middleware.GetCorrelationID(r.Context())

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		s.writeProblem(w, r, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), contentTypeJSON)
}
