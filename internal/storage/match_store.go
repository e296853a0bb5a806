package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

var (
	_ ingestion.MatchStore  = (*MatchStore)(nil)
	_ ingestion.MatchReader = (*MatchStore)(nil)
	_ changes.Outbox        = (*MatchStore)(nil)
)

// MatchStore is the PostgreSQL match aggregate store.
//
// Every write runs in one transaction with an insert into match_changes, the
// outbox the changes.Relay drains. Row locks on matches serialize writes to one
// match, so outbox ids of a match grow with its version.
type MatchStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewMatchStore creates a PostgreSQL-backed match store.
func NewMatchStore(conn *Connection, logger *slog.Logger) (*MatchStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &MatchStore{conn: conn, logger: logger}, nil
}

// HealthCheck verifies the database connection.
func (s *MatchStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// GetMatch returns the stored aggregate or ingestion.ErrMatchNotFound.
func (s *MatchStore) GetMatch(ctx context.Context, matchID string) (*ingestion.Match, error) {
	const query = `
		SELECT match_id, team, opponent, match_date, events, statistics, version
		FROM matches
		WHERE match_id = $1`

	match, err := scanMatch(s.conn.QueryRowContext(ctx, query, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrMatchNotFound, matchID)
	}

	if err != nil {
		return nil, classify("get match", err)
	}

	return match, nil
}

// ListMatches returns every match, newest first.
func (s *MatchStore) ListMatches(ctx context.Context) ([]ingestion.MatchSummary, error) {
	const query = `
		SELECT match_id, team, opponent, match_date
		FROM matches
		ORDER BY match_date DESC, match_id`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list matches", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	summaries := make([]ingestion.MatchSummary, 0)

	for rows.Next() {
		var summary ingestion.MatchSummary
		if err := rows.Scan(&summary.MatchID, &summary.Team, &summary.Opponent, &summary.Date); err != nil {
			return nil, classify("scan match summary", err)
		}

		summary.Date = summary.Date.UTC()
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("list matches", err)
	}

	return summaries, nil
}

// CreateMatch inserts match with version 1 and records an "inserted" change.
// Returns ingestion.ErrMatchExists when the row is already there.
func (s *MatchStore) CreateMatch(ctx context.Context, match *ingestion.Match) error {
	image := match.Clone()
	image.Version = 1

	if image.Events == nil {
		image.Events = []ingestion.Event{}
	}

	events, err := json.Marshal(image.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	statistics, err := json.Marshal(image.Statistics)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin create match", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	const insert = `
		INSERT INTO matches (match_id, team, opponent, match_date, events, statistics, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (match_id) DO NOTHING`

	result, err := tx.ExecContext(ctx, insert,
		image.MatchID, image.Team, image.Opponent, image.Date, events, statistics)
	if err != nil {
		return classify("create match", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("create match", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", ingestion.ErrMatchExists, image.MatchID)
	}

	if err := insertChange(ctx, tx, changes.EventInserted, image); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit create match", err)
	}

	s.logger.Debug("Created match",
		slog.String("match_id", image.MatchID),
		slog.String("team", image.Team),
	)

	return nil
}

// AppendEvent appends event and replaces the statistics when the stored version
// equals expectedVersion, then records a "modified" change with the new image.
func (s *MatchStore) AppendEvent(
	ctx context.Context,
	matchID string,
	event ingestion.Event,
	stats ingestion.Statistics,
	expectedVersion int64,
) error {
	encodedEvent, err := json.Marshal([]ingestion.Event{event})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	statistics, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin append event", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	const update = `
		UPDATE matches
		SET events = events || $2::jsonb,
		    statistics = $3::jsonb,
		    version = version + 1,
		    updated_at = NOW()
		WHERE match_id = $1 AND version = $4
		RETURNING match_id, team, opponent, match_date, events, statistics, version`

	image, err := scanMatch(tx.QueryRowContext(ctx, update, matchID, encodedEvent, statistics, expectedVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return s.missedAppend(ctx, tx, matchID, expectedVersion)
	}

	if err != nil {
		return classify("append event", err)
	}

	if err := insertChange(ctx, tx, changes.EventModified, image); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit append event", err)
	}

	return nil
}

// missedAppend tells a stale version from a missing match after a conditional
// update touched no row.
func (s *MatchStore) missedAppend(ctx context.Context, tx *sql.Tx, matchID string, expectedVersion int64) error {
	var current int64

	err := tx.QueryRowContext(ctx, `SELECT version FROM matches WHERE match_id = $1`, matchID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ingestion.ErrMatchNotFound, matchID)
	}

	if err != nil {
		return classify("check match version", err)
	}

	return fmt.Errorf("%w: match %s is at version %d, expected %d",
		ingestion.ErrVersionConflict, matchID, current, expectedVersion)
}

// PendingChanges returns up to limit unpublished changes in outbox order.
func (s *MatchStore) PendingChanges(ctx context.Context, limit int) ([]changes.Notification, error) {
	const query = `
		SELECT id, match_id, event_name, version, image, created_at
		FROM match_changes
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, classify("pending changes", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var pending []changes.Notification

	for rows.Next() {
		var (
			n     changes.Notification
			name  string
			image []byte
		)

		if err := rows.Scan(&n.Sequence, &n.MatchID, &name, &n.Version, &image, &n.OccurredAt); err != nil {
			return nil, classify("scan change", err)
		}

		n.EventName = changes.EventName(name)
		n.OccurredAt = n.OccurredAt.UTC()

		if err := json.Unmarshal(image, &n.Image); err != nil {
			return nil, fmt.Errorf("failed to decode image of change %d: %w", n.Sequence, err)
		}

		pending = append(pending, n)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("pending changes", err)
	}

	return pending, nil
}

// MarkPublished flags the changes with the given sequences as published.
func (s *MatchStore) MarkPublished(ctx context.Context, sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}

	const update = `
		UPDATE match_changes
		SET published_at = NOW()
		WHERE id = ANY($1) AND published_at IS NULL`

	if _, err := s.conn.ExecContext(ctx, update, pq.Array(sequences)); err != nil {
		return classify("mark published", err)
	}

	return nil
}

func insertChange(ctx context.Context, tx *sql.Tx, name changes.EventName, image *ingestion.Match) error {
	encoded, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("failed to encode change image: %w", err)
	}

	const insert = `
		INSERT INTO match_changes (match_id, version, event_name, image)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.ExecContext(ctx, insert, image.MatchID, image.Version, string(name), encoded); err != nil {
		return classify("record change", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*ingestion.Match, error) {
	var (
		match      ingestion.Match
		date       time.Time
		events     []byte
		statistics []byte
	)

	if err := row.Scan(&match.MatchID, &match.Team, &match.Opponent, &date, &events, &statistics, &match.Version); err != nil {
		return nil, err
	}

	match.Date = date.UTC()

	if err := json.Unmarshal(events, &match.Events); err != nil {
		return nil, fmt.Errorf("failed to decode events of match %s: %w", match.MatchID, err)
	}

	if err := json.Unmarshal(statistics, &match.Statistics); err != nil {
		return nil, fmt.Errorf("failed to decode statistics of match %s: %w", match.MatchID, err)
	}

	if match.Events == nil {
		match.Events = []ingestion.Event{}
	}

	return &match, nil
}
