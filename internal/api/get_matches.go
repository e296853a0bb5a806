package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

type (
	// MatchSummaryResponse is one entry of GET /api/v1/matches.
	MatchSummaryResponse struct {
		MatchID  string `json:"match_id"` //nolint: tagliatelle
		Team     string `json:"team"`
		Opponent string `json:"opponent"`
		Date     string `json:"date"`
	}

	// MatchListResponse is the body of GET /api/v1/matches.
	MatchListResponse struct {
		Status  string                 `json:"status"`
		Matches []MatchSummaryResponse `json:"matches"`
	}

	// EventResponse is one entry of a match event log.
	EventResponse struct {
		EventID   string            `json:"event_id"`   //nolint: tagliatelle
		EventType string            `json:"event_type"` //nolint: tagliatelle
		Timestamp string            `json:"timestamp"`
		Player    *ingestion.Player `json:"player,omitempty"`
		GoalType  string            `json:"goal_type,omitempty"` //nolint: tagliatelle
		Minute    *int              `json:"minute,omitempty"`
		Assist    *ingestion.Player `json:"assist,omitempty"`
		VideoURL  string            `json:"video_url,omitempty"` //nolint: tagliatelle
	}

	// MatchDetailResponse is the aggregate without its statistics snapshot.
	MatchDetailResponse struct {
		MatchID  string          `json:"match_id"` //nolint: tagliatelle
		Team     string          `json:"team"`
		Opponent string          `json:"opponent"`
		Date     string          `json:"date"`
		Events   []EventResponse `json:"events"`
	}

	// MatchDetailEnvelope is the body of GET /api/v1/matches/{match_id}.
	MatchDetailEnvelope struct {
		Status string              `json:"status"`
		Match  MatchDetailResponse `json:"match"`
	}

	// MatchStatisticsResponse projects the statistics snapshot of a match.
	MatchStatisticsResponse struct {
		MatchID    string               `json:"match_id"` //nolint: tagliatelle
		Statistics ingestion.Statistics `json:"statistics"`
	}

	// MatchStatisticsEnvelope is the body of GET /api/v1/matches/{match_id}/statistics.
	MatchStatisticsEnvelope struct {
		Status string                  `json:"status"`
		Match  MatchStatisticsResponse `json:"match"`
	}
)

func newEventResponse(e ingestion.Event) EventResponse {
	return EventResponse{
		EventID:   e.ID,
		EventType: e.Type.String(),
		Timestamp: ingestion.FormatTimestamp(e.Timestamp),
		Player:    e.Player,
		GoalType:  e.GoalType,
		Minute:    e.Minute,
		Assist:    e.Assist,
		VideoURL:  e.VideoURL,
	}
}

// handleListMatches returns every stored match without events or statistics.
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	summaries, err := s.deps.Matches.ListMatches(ctx)
	if err != nil {
		s.writeQueryError(w, r, err)

		return
	}

	matches := make([]MatchSummaryResponse, len(summaries))
	for i, m := range summaries {
		matches[i] = MatchSummaryResponse{
			MatchID:  m.MatchID,
			Team:     m.Team,
			Opponent: m.Opponent,
			Date:     ingestion.FormatTimestamp(m.Date),
		}
	}

	s.writeJSON(w, r, http.StatusOK, MatchListResponse{Status: statusSuccess, Matches: matches})
}

// handleGetMatch returns one aggregate with its event log in arrival order.
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, ok := s.readMatch(w, r)
	if !ok {
		return
	}

	events := make([]EventResponse, len(match.Events))
	for i := range match.Events {
		events[i] = newEventResponse(match.Events[i])
	}

	s.writeJSON(w, r, http.StatusOK, MatchDetailEnvelope{
		Status: statusSuccess,
		Match: MatchDetailResponse{
			MatchID:  match.MatchID,
			Team:     match.Team,
			Opponent: match.Opponent,
			Date:     ingestion.FormatTimestamp(match.Date),
			Events:   events,
		},
	})
}

// handleGetMatchStatistics returns the stored snapshot as written by the last
// ingest. Nothing is recomputed on the read path.
func (s *Server) handleGetMatchStatistics(w http.ResponseWriter, r *http.Request) {
	match, ok := s.readMatch(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, r, http.StatusOK, MatchStatisticsEnvelope{
		Status: statusSuccess,
		Match: MatchStatisticsResponse{
			MatchID:    match.MatchID,
			Statistics: match.Statistics,
		},
	})
}

// readMatch loads the aggregate named by the match_id path value and writes
// the error response itself when it cannot.
func (s *Server) readMatch(w http.ResponseWriter, r *http.Request) (*ingestion.Match, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	match, err := s.deps.Matches.GetMatch(ctx, r.PathValue("match_id"))
	if err != nil {
		s.writeQueryError(w, r, err)

		return nil, false
	}

	return match, true
}

// writeQueryError classifies a read failure and writes its problem response.
// Not-found results are expected and logged at debug level only.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if !isNotFound(err) {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}

		err = ingestion.ClassifyStoreError(err)

		s.logger.Error("Query failed",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Debug("Resource not found",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
		)
	}

	s.writeProblem(w, r, problemFor(err))
}
