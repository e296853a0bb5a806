package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
)

var (
	_ aggregation.TeamStore  = (*TeamStore)(nil)
	_ aggregation.TeamReader = (*TeamStore)(nil)
)

// TeamStore is the PostgreSQL team statistics store.
type TeamStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewTeamStore creates a PostgreSQL-backed team statistics store.
func NewTeamStore(conn *Connection, logger *slog.Logger) (*TeamStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TeamStore{conn: conn, logger: logger}, nil
}

// GetTeam returns the record for team or aggregation.ErrTeamNotFound.
func (s *TeamStore) GetTeam(ctx context.Context, team string) (*aggregation.TeamStatistics, error) {
	const query = `
		SELECT team, total_goals_scored, processed_events, version, updated_at
		FROM team_statistics
		WHERE team = $1`

	var (
		stats     aggregation.TeamStatistics
		processed []byte
	)

	err := s.conn.QueryRowContext(ctx, query, team).
		Scan(&stats.Team, &stats.TotalGoalsScored, &processed, &stats.Version, &stats.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", aggregation.ErrTeamNotFound, team)
	}

	if err != nil {
		return nil, classify("get team", err)
	}

	if err := json.Unmarshal(processed, &stats.ProcessedEvents); err != nil {
		return nil, fmt.Errorf("failed to decode processed events of team %s: %w", team, err)
	}

	if stats.ProcessedEvents == nil {
		stats.ProcessedEvents = make(map[string][]string)
	}

	stats.UpdatedAt = stats.UpdatedAt.UTC()

	return &stats, nil
}

// CreateTeam inserts stats with version 1, or returns aggregation.ErrTeamExists.
func (s *TeamStore) CreateTeam(ctx context.Context, stats *aggregation.TeamStatistics) error {
	processed, err := encodeProcessed(stats)
	if err != nil {
		return err
	}

	const insert = `
		INSERT INTO team_statistics (team, total_goals_scored, processed_events, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (team) DO NOTHING`

	result, err := s.conn.ExecContext(ctx, insert, stats.Team, stats.TotalGoalsScored, processed)
	if err != nil {
		return classify("create team", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("create team", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", aggregation.ErrTeamExists, stats.Team)
	}

	return nil
}

// UpdateTeam replaces the totals of stats.Team when its version equals expectedVersion.
func (s *TeamStore) UpdateTeam(ctx context.Context, stats *aggregation.TeamStatistics, expectedVersion int64) error {
	processed, err := encodeProcessed(stats)
	if err != nil {
		return err
	}

	const update = `
		UPDATE team_statistics
		SET total_goals_scored = $2,
		    processed_events = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE team = $1 AND version = $4`

	result, err := s.conn.ExecContext(ctx, update, stats.Team, stats.TotalGoalsScored, processed, expectedVersion)
	if err != nil {
		return classify("update team", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("update team", err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = s.conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM team_statistics WHERE team = $1)`, stats.Team).
		Scan(&exists)
	if err != nil {
		return classify("check team version", err)
	}

	if !exists {
		return fmt.Errorf("%w: %s", aggregation.ErrTeamNotFound, stats.Team)
	}

	return fmt.Errorf("%w: team %s moved past version %d", aggregation.ErrVersionConflict, stats.Team, expectedVersion)
}

func encodeProcessed(stats *aggregation.TeamStatistics) ([]byte, error) {
	processed := stats.ProcessedEvents
	if processed == nil {
		processed = map[string][]string{}
	}

	encoded, err := json.Marshal(processed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode processed events of team %s: %w", stats.Team, err)
	}

	return encoded, nil
}
