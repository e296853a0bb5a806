package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

func TestInMemoryMatchStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	runMatchStoreContract(t, func(*testing.T) matchStoreUnderTest {
		return NewInMemoryMatchStore()
	})
}

func TestInMemoryTeamStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	runTeamStoreContract(t, func(*testing.T) aggregation.TeamStore {
		return NewInMemoryTeamStore()
	})
}

func TestInMemoryMatchStore_StoredStateIsIsolated(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryMatchStore()
	ctx := context.Background()

	match := newMatch("m1", kickoff, newEvent("e1", "m1", ingestion.EventTypeGoal))
	require.NoError(t, store.CreateMatch(ctx, match))

	// Mutating the caller's value after the write changes nothing.
	match.Events[0].Player.Name = "changed"

	got, err := store.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Events[0].Player.Name)

	// Mutating a read result changes nothing either.
	got.Events[0].Player.Name = "changed"
	*got.Events[0].Minute = 90

	again, err := store.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Events[0].Player.Name)
	assert.Equal(t, 12, *again.Events[0].Minute)

	pending, err := store.PendingChanges(ctx, 1)
	require.NoError(t, err)
	pending[0].Image.Events[0].Player.Name = "changed"

	pendingAgain, err := store.PendingChanges(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada", pendingAgain[0].Image.Events[0].Player.Name)
}

func TestInMemoryStores_CanceledContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matches := NewInMemoryMatchStore()
	teams := NewInMemoryTeamStore()

	_, err := matches.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, matches.CreateMatch(ctx, newMatch("m1", kickoff)), context.Canceled)

	_, err = teams.GetTeam(ctx, "Lions")
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()

	_, err = matches.ListMatches(expired)
	assert.ErrorIs(t, err, ingestion.ErrTimeout)
}

// TestInMemoryPipeline runs ingestion, the relay, the in-process bus and the
// aggregator together, the way cmd/pitchlog wires them for PITCHLOG_STORAGE=memory.
func TestInMemoryPipeline(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.DiscardHandler)
	matches := NewInMemoryMatchStore()
	teams := NewInMemoryTeamStore()
	bus := changes.NewMemoryBus(64, logger)

	service := ingestion.NewService(matches, ingestion.ServiceConfig{
		StoreTimeout: time.Second,
		RetryPolicy:  ingestion.DefaultRetryPolicy(),
	})
	aggregator := aggregation.NewAggregator(teams, ingestion.ServiceConfig{},
		aggregation.WithMatchReader(matches),
		aggregation.WithLogger(logger),
	)
	relay := changes.NewRelay(matches, bus, changes.RelayConfig{Interval: time.Hour, BatchSize: 2}, logger, nil)

	done := make(chan error, 1)

	go func() {
		done <- bus.Run(ctx, aggregator.Handle)
	}()

	requests := []ingestion.IngestRequest{
		{MatchID: "m1", Team: "Lions", Opponent: "Tigers", EventType: "goal"},
		{MatchID: "m1", EventType: "foul"},
		{MatchID: "m1", EventType: "goal"},
		{MatchID: "m2", Team: "Lions", Opponent: "Bears", EventType: "goal"},
		{MatchID: "m3", Team: "Tigers", Opponent: "Lions", EventType: "goal"},
	}

	for i := range requests {
		_, err := service.Ingest(ctx, &requests[i])
		require.NoError(t, err)
	}

	published, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(requests), published)

	pendingAfter, err := matches.PendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pendingAfter)

	require.Eventually(t, func() bool {
		return bus.Pending() == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		lions, err := teams.GetTeam(ctx, "Lions")
		if err != nil || lions.TotalGoalsScored != 3 {
			return false
		}

		tigers, err := teams.GetTeam(ctx, "Tigers")

		return err == nil && tigers.TotalGoalsScored == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
