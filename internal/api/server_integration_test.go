package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/config"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
	"github.com/pitchlog-io/pitchlog/internal/storage"
)

// handlerPublisher delivers published notifications straight to a handler.
type handlerPublisher changes.Handler

func (p handlerPublisher) Publish(ctx context.Context, notifications ...changes.Notification) error {
	for _, n := range notifications {
		if err := p(ctx, n); err != nil {
			return err
		}
	}

	return nil
}

// TestServerIntegration drives the full write path against PostgreSQL:
// HTTP ingest, outbox relay, team statistics fold, HTTP reads.
func TestServerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	// Lions already have a season total from a match folded before this run.
	const seasonGoals = 5

	testDB.SeedMatch(t, config.SeededMatch{MatchID: "opener", Team: "Lions", Opponent: "Bears", Date: time.Now()})
	testDB.SeedTeamTotal(t, "Lions", seasonGoals, map[string][]string{"opener": {"o1", "o2", "o3", "o4", "o5"}})

	conn, err := storage.NewConnection(storage.NewConfig(testDB.URL))
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	logger := slog.New(slog.DiscardHandler)

	matches, err := storage.NewMatchStore(conn, logger)
	require.NoError(t, err)

	teams, err := storage.NewTeamStore(conn, logger)
	require.NoError(t, err)

	service := ingestion.NewService(matches, ingestion.ServiceConfig{}, ingestion.WithLogger(logger))
	aggregator := aggregation.NewAggregator(teams, ingestion.ServiceConfig{},
		aggregation.WithMatchReader(matches),
		aggregation.WithLogger(logger),
	)
	relay := changes.NewRelay(matches, handlerPublisher(aggregator.Handle), changes.RelayConfig{}, logger, nil)

	server := NewServer(testServerConfig(), Dependencies{
		Ingester: service,
		Matches:  matches,
		Teams:    teams,
		Health:   conn,
		Logger:   logger,
	})
	handler := server.Handler()

	post := func(t *testing.T, body string) *httptest.ResponseRecorder {
		t.Helper()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	t.Run("ready", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, "/ready").Code)
	})

	t.Run("concurrent ingest keeps every event", func(t *testing.T) {
		const writers = 10

		var wg sync.WaitGroup

		statuses := make([]int, writers)

		for i := range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				eventType := "foul"
				if i%2 == 0 {
					eventType = "goal"
				}

				statuses[i] = post(t, eventBody("derby-1", eventType)).Code
			}()
		}

		wg.Wait()

		accepted := 0

		for _, status := range statuses {
			if status == http.StatusOK {
				accepted++
			} else {
				assert.Equal(t, http.StatusConflict, status, "only contention may reject a valid event")
			}
		}

		rec := get(t, "/api/v1/matches/derby-1")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp MatchDetailEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Match.Events, accepted, "every accepted event must be in the log exactly once")
	})

	t.Run("team statistics follow the change stream", func(t *testing.T) {
		for i := range 3 {
			rec := post(t, eventBody(fmt.Sprintf("cup-%d", i), "goal"))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}

		_, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, testDB.PendingChanges(t))

		// A second flush finds nothing left to publish.
		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)

		rec := get(t, "/api/v1/teams/Lions/statistics")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var stats TeamStatisticsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, "Lions", stats.Team)

		// derby-1 contributed its accepted goals as well.
		derby, err := matches.GetMatch(ctx, "derby-1")
		require.NoError(t, err)
		assert.Equal(t, int64(seasonGoals+3+derby.Statistics.TotalGoals), stats.TotalGoalsScored)
	})

	t.Run("seeded match is readable", func(t *testing.T) {
		rec := get(t, "/api/v1/matches/opener")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp MatchDetailEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Bears", resp.Match.Opponent)
		assert.Empty(t, resp.Match.Events)
	})

	t.Run("unknown match is 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, "/api/v1/matches/missing").Code)
	})
}
