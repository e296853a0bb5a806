package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

const contentTypeProblemJSON = "application/problem+json"

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"` //nolint: tagliatelle
	// Retriable tells the client it may resend the same request unchanged.
	Retriable bool `json:"retriable"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://pitchlog.io/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WithInstance adds an instance URI to the problem detail.
func (p *ProblemDetail) WithInstance(instance string) *ProblemDetail {
	p.Instance = instance

	return p
}

// WithCorrelationID adds a correlation ID to the problem detail.
func (p *ProblemDetail) WithCorrelationID(correlationID string) *ProblemDetail {
	p.CorrelationID = correlationID

	return p
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	if problem.Retriable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)
	}
}

// writeProblem writes problem with the configured Retry-After hint.
func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, problem *ProblemDetail) {
	if problem.Retriable {
		w.Header().Set("Retry-After", s.config.retryAfterSeconds())
	}

	WriteErrorResponse(w, r, s.logger, problem)
}

// problemFor maps a domain error onto its HTTP problem.
//
//	ingestion.ErrValidation        → 400
//	ErrMatchNotFound, ErrTeamNotFound → 404
//	ingestion.ErrContention        → 409 (retriable)
//	ingestion.ErrStoreUnavailable  → 503 (retriable)
//	ingestion.ErrTimeout           → 504 (retriable)
//
// Anything else is a 500 whose detail does not leak the error text.
func problemFor(err error) *ProblemDetail {
	switch {
	case errors.Is(err, ingestion.ErrValidation):
		return BadRequest(err.Error())
	case errors.Is(err, ingestion.ErrMatchNotFound):
		return NotFound("Match not found")
	case errors.Is(err, aggregation.ErrTeamNotFound):
		return NotFound("Team not found")
	case errors.Is(err, ingestion.ErrContention):
		return Conflict("Too many concurrent writes to this match, retry the request")
	case errors.Is(err, ingestion.ErrStoreUnavailable):
		return ServiceUnavailable("Storage is temporarily unavailable")
	case errors.Is(err, ingestion.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return GatewayTimeout("Storage did not respond in time")
	default:
		return InternalServerError("An unexpected error occurred while processing the request")
	}
}

// Common error constructors for frequently used errors.

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// MethodNotAllowed creates a 405 Method Not Allowed problem.
func MethodNotAllowed(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusMethodNotAllowed, "Method Not Allowed", detail)
}

// Conflict creates a retriable 409 Conflict problem.
func Conflict(detail string) *ProblemDetail {
	p := NewProblemDetail(http.StatusConflict, "Conflict", detail)
	p.Retriable = true

	return p
}

// PayloadTooLarge creates a 413 Payload Too Large problem.
func PayloadTooLarge(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusRequestEntityTooLarge, "Payload Too Large", detail)
}

// UnsupportedMediaType creates a 415 Unsupported Media Type problem.
func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnsupportedMediaType, "Unsupported Media Type", detail)
}

// ServiceUnavailable creates a retriable 503 Service Unavailable problem.
func ServiceUnavailable(detail string) *ProblemDetail {
	p := NewProblemDetail(http.StatusServiceUnavailable, "Service Unavailable", detail)
	p.Retriable = true

	return p
}

// GatewayTimeout creates a retriable 504 Gateway Timeout problem.
func GatewayTimeout(detail string) *ProblemDetail {
	p := NewProblemDetail(http.StatusGatewayTimeout, "Gateway Timeout", detail)
	p.Retriable = true

	return p
}
