package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

const ingestSuccessMessage = "Data successfully ingested."

type (
	// EventRequest is the wire body of POST /api/v1/events.
	// It is kept apart from ingestion.IngestRequest so the API contract can
	// evolve independently of the domain.
	EventRequest struct {
		MatchID   string        `json:"match_id"`               //nolint: tagliatelle
		Timestamp WireTimestamp `json:"timestamp"`
		Team      string        `json:"team"`
		Opponent  string        `json:"opponent"`
		EventType string        `json:"event_type"`             //nolint: tagliatelle
		Details   *EventDetails `json:"event_details,omitempty"` //nolint: tagliatelle
	}

	// EventDetails is the optional event_details object of an EventRequest.
	EventDetails struct {
		Player   *ingestion.Player `json:"player,omitempty"`
		GoalType string            `json:"goal_type,omitempty"` //nolint: tagliatelle
		Minute   *int              `json:"minute,omitempty"`
		Assist   *ingestion.Player `json:"assist,omitempty"`
		VideoURL string            `json:"video_url,omitempty"` //nolint: tagliatelle
	}

	// WireTimestamp accepts either an ISO-8601 string or epoch milliseconds.
	// Numbers are converted to ISO-8601 so the service sees a single format.
	WireTimestamp string

	// IngestResponse is the success body of POST /api/v1/events.
	IngestResponse struct {
		Status  string     `json:"status"`
		Message string     `json:"message"`
		Data    IngestData `json:"data"`
	}

	// IngestData identifies the stored event.
	IngestData struct {
		EventID   string `json:"event_id"` //nolint: tagliatelle
		Timestamp string `json:"timestamp"`
	}
)

// UnmarshalJSON implements json.Unmarshaler.
func (t *WireTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*t = WireTimestamp(s)
	default:
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			// Not a timestamp in any accepted form: the service substitutes the ingestion time.
			*t = ""

			return nil //nolint: nilerr
		}

		*t = WireTimestamp(ingestion.FormatTimestamp(time.UnixMilli(ms)))
	}

	return nil
}

// toDomain converts the wire request to the ingestion input.
func (e *EventRequest) toDomain() *ingestion.IngestRequest {
	req := &ingestion.IngestRequest{
		MatchID:   e.MatchID,
		Timestamp: string(e.Timestamp),
		Team:      e.Team,
		Opponent:  e.Opponent,
		EventType: e.EventType,
	}

	if e.Details != nil {
		req.Details = &ingestion.EventDetails{
			Player:   e.Details.Player,
			GoalType: e.Details.GoalType,
			Minute:   e.Details.Minute,
			Assist:   e.Details.Assist,
			VideoURL: e.Details.VideoURL,
		}
	}

	return req
}

// handleIngestEvent merges one event into its match aggregate.
//
// Response codes:
//   - 200 OK: event stored, body carries its event_id and normalized timestamp
//   - 400 Bad Request: malformed JSON or a validation failure
//   - 409 Conflict: the write lost every optimistic retry (retriable)
//   - 413 Payload Too Large, 415 Unsupported Media Type
//   - 503, 504: storage unavailable or too slow (retriable)
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		s.writeProblem(w, r, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	if r.ContentLength > s.config.MaxRequestSize {
		s.writeProblem(w, r, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds %d bytes", s.config.MaxRequestSize),
		))

		return
	}

	// Read one byte past the limit to detect oversized chunked bodies.
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		s.logger.Warn("Failed to read request body",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		s.writeProblem(w, r, BadRequest("Failed to read request body"))

		return
	}

	if int64(len(body)) > s.config.MaxRequestSize {
		s.writeProblem(w, r, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds %d bytes", s.config.MaxRequestSize),
		))

		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		s.writeProblem(w, r, BadRequest("Request body is empty"))

		return
	}

	var event EventRequest
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Warn("Malformed event payload",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		s.writeProblem(w, r, BadRequest("Request body is not a valid JSON event object"))

		return
	}

	result, err := s.deps.Ingester.Ingest(r.Context(), event.toDomain())
	if err != nil {
		s.writeIngestError(w, r, event.MatchID, err)

		return
	}

	s.logger.Info("Event ingested",
		slog.String("correlation_id", correlationID),
		slog.String("match_id", event.MatchID),
		slog.String("event_id", result.EventID),
		slog.Bool("match_created", result.Created),
	)

	s.writeJSON(w, r, http.StatusOK, IngestResponse{
		Status:  statusSuccess,
		Message: ingestSuccessMessage,
		Data: IngestData{
			EventID:   result.EventID,
			Timestamp: ingestion.FormatTimestamp(result.Timestamp),
		},
	})
}

func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, matchID string, err error) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// The client went away; nothing useful can be written.
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.Info("Ingest canceled by client",
			slog.String("correlation_id", correlationID),
			slog.String("match_id", matchID),
		)

		return
	}

	problem := problemFor(err)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	s.logger.Log(r.Context(), level, "Event ingestion failed",
		slog.String("correlation_id", correlationID),
		slog.String("match_id", matchID),
		slog.Int("status", problem.Status),
		slog.String("error", err.Error()),
	)

	s.writeProblem(w, r, problem)
}
