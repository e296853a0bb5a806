package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

// TeamStatisticsResponse is the body of GET /api/v1/teams/{team}/statistics.
// The per-match processed event sets are internal and never exposed.
type TeamStatisticsResponse struct {
	Status           string `json:"status"`
	Team             string `json:"team"`
	TotalGoalsScored int64  `json:"total_goals_scored"`   //nolint: tagliatelle
	UpdatedAt        string `json:"updated_at,omitempty"` //nolint: tagliatelle
}

// handleGetTeamStatistics returns the cumulative record of one team. The
// requested name is resolved through the alias table first, so "Man Utd" and
// "Manchester United" read the same row.
func (s *Server) handleGetTeamStatistics(w http.ResponseWriter, r *http.Request) {
	team := s.deps.Resolver.CanonicalTeam(strings.TrimSpace(r.PathValue("team")))
	if team == "" {
		s.writeProblem(w, r, BadRequest("team must not be empty"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	stats, err := s.deps.Teams.GetTeam(ctx, team)
	if err != nil {
		s.writeQueryError(w, r, err)

		return
	}

	var updatedAt string
	if !stats.UpdatedAt.IsZero() {
		updatedAt = ingestion.FormatTimestamp(stats.UpdatedAt)
	}

	s.writeJSON(w, r, http.StatusOK, TeamStatisticsResponse{
		Status:           statusSuccess,
		Team:             stats.Team,
		TotalGoalsScored: stats.TotalGoalsScored,
		UpdatedAt:        updatedAt,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ingestion.ErrMatchNotFound) || errors.Is(err, aggregation.ErrTeamNotFound)
}
