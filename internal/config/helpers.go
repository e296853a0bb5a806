package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pitchlog-io/pitchlog/migrations"
)

const (
	readyLogOccurrences = 2
	containerStartup    = 120 * time.Second
)

// TestDatabase is a migrated PostgreSQL container holding the pitchlog schema.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
	URL        string
}

// SeededMatch is a match row written directly to the database, bypassing the
// ingestion path. Version defaults to 1.
type SeededMatch struct {
	MatchID  string
	Team     string
	Opponent string
	Date     time.Time
	Version  int64
}

// SetupTestDatabase starts a PostgreSQL 16 container, applies the embedded
// schema and terminates the container when t finishes.
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pitchlog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrences).
				WithStartupTimeout(containerStartup),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	conn, err := sql.Open("postgres", url)
	require.NoError(t, err, "Failed to open database")

	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, applySchema(conn), "Failed to apply schema")

	return &TestDatabase{Container: container, Connection: conn, URL: url}
}

// applySchema runs the same validated migration set cmd/migrator ships.
func applySchema(db *sql.DB) error {
	set := migrations.New(nil)
	if err := set.Validate(); err != nil {
		return err
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		return err
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// Reset empties the match, outbox and team tables.
func (d *TestDatabase) Reset(t *testing.T) {
	t.Helper()

	_, err := d.Connection.ExecContext(t.Context(),
		`TRUNCATE match_changes, matches, team_statistics RESTART IDENTITY`)
	require.NoError(t, err, "Failed to reset tables")
}

// SeedMatch inserts a match with an empty event log and no pending change.
func (d *TestDatabase) SeedMatch(t *testing.T, match SeededMatch) {
	t.Helper()

	if match.Version == 0 {
		match.Version = 1
	}

	statistics, err := json.Marshal(map[string]any{
		"team":     match.Team,
		"opponent": match.Opponent,
	})
	require.NoError(t, err)

	_, err = d.Connection.ExecContext(t.Context(), `
		INSERT INTO matches (match_id, team, opponent, match_date, statistics, version)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		match.MatchID, match.Team, match.Opponent, match.Date.UTC(), statistics, match.Version)
	require.NoError(t, err, "Failed to seed match %s", match.MatchID)
}

// SeedTeamTotal inserts a team row whose total already counts processed,
// a match_id to event IDs map.
func (d *TestDatabase) SeedTeamTotal(t *testing.T, team string, goals int64, processed map[string][]string) {
	t.Helper()

	if processed == nil {
		processed = map[string][]string{}
	}

	encoded, err := json.Marshal(processed)
	require.NoError(t, err)

	_, err = d.Connection.ExecContext(t.Context(), `
		INSERT INTO team_statistics (team, total_goals_scored, processed_events, version)
		VALUES ($1, $2, $3, 1)`,
		team, goals, encoded)
	require.NoError(t, err, "Failed to seed team %s", team)
}

// PendingChanges counts outbox rows not yet published.
func (d *TestDatabase) PendingChanges(t *testing.T) int {
	t.Helper()

	var pending int

	err := d.Connection.QueryRowContext(t.Context(),
		`SELECT COUNT(*) FROM match_changes WHERE published_at IS NULL`).Scan(&pending)
	require.NoError(t, err, "Failed to count pending changes")

	return pending
}
