package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

// matchStoreUnderTest is the full surface both match store implementations provide.
type matchStoreUnderTest interface {
	ingestion.MatchStore
	ingestion.MatchReader
	changes.Outbox
}

var kickoff = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func newMatch(matchID string, date time.Time, events ...ingestion.Event) *ingestion.Match {
	return &ingestion.Match{
		MatchID:    matchID,
		Team:       "Lions",
		Opponent:   "Tigers",
		Date:       date,
		Events:     events,
		Statistics: ingestion.Calculate("Lions", "Tigers", events),
		Version:    1,
	}
}

func newEvent(id, matchID string, eventType ingestion.EventType) ingestion.Event {
	minute := 12

	return ingestion.Event{
		ID:        id,
		MatchID:   matchID,
		Type:      eventType,
		Timestamp: kickoff.Add(time.Duration(minute) * time.Minute),
		Player:    &ingestion.Player{Name: "Ada"},
		Minute:    &minute,
	}
}

// runMatchStoreContract checks the conditional-write and outbox behavior every
// match store must provide. newStore returns an empty store.
func runMatchStoreContract(t *testing.T, newStore func(t *testing.T) matchStoreUnderTest) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		goal := newEvent("e1", "m1", ingestion.EventTypeGoal)
		require.NoError(t, store.CreateMatch(ctx, newMatch("m1", kickoff, goal)))

		match, err := store.GetMatch(ctx, "m1")
		require.NoError(t, err)

		assert.Equal(t, int64(1), match.Version)
		assert.Equal(t, "Lions", match.Team)
		assert.True(t, kickoff.Equal(match.Date))
		assert.Equal(t, []string{"e1"}, match.EventIDs())
		assert.Equal(t, 1, match.Statistics.TotalGoals)
		require.NotNil(t, match.Events[0].Minute)
		assert.Equal(t, 12, *match.Events[0].Minute)

		err = store.CreateMatch(ctx, newMatch("m1", kickoff))
		require.ErrorIs(t, err, ingestion.ErrMatchExists)

		unchanged, err := store.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, []string{"e1"}, unchanged.EventIDs())
	})

	t.Run("get missing match", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetMatch(context.Background(), "nope")
		assert.ErrorIs(t, err, ingestion.ErrMatchNotFound)
	})

	t.Run("append is conditional on version", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		goal := newEvent("e1", "m1", ingestion.EventTypeGoal)
		foul := newEvent("e2", "m1", ingestion.EventTypeFoul)

		require.NoError(t, store.CreateMatch(ctx, newMatch("m1", kickoff, goal)))

		stats := ingestion.Calculate("Lions", "Tigers", []ingestion.Event{goal, foul})
		require.NoError(t, store.AppendEvent(ctx, "m1", foul, stats, 1))

		match, err := store.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), match.Version)
		assert.Equal(t, []string{"e1", "e2"}, match.EventIDs())
		assert.Equal(t, stats, match.Statistics)

		stale := newEvent("e3", "m1", ingestion.EventTypeGoal)
		err = store.AppendEvent(ctx, "m1", stale, stats, 1)
		require.ErrorIs(t, err, ingestion.ErrVersionConflict)

		after, err := store.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.Version)
		assert.Equal(t, []string{"e1", "e2"}, after.EventIDs())

		err = store.AppendEvent(ctx, "missing", stale, stats, 1)
		assert.ErrorIs(t, err, ingestion.ErrMatchNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateMatch(ctx, newMatch("old", kickoff.Add(-48*time.Hour))))
		require.NoError(t, store.CreateMatch(ctx, newMatch("b-new", kickoff)))
		require.NoError(t, store.CreateMatch(ctx, newMatch("a-new", kickoff)))

		summaries, err := store.ListMatches(ctx)
		require.NoError(t, err)

		ids := make([]string, len(summaries))
		for i, s := range summaries {
			ids[i] = s.MatchID
		}

		assert.Equal(t, []string{"a-new", "b-new", "old"}, ids)
	})

	t.Run("list empty", func(t *testing.T) {
		store := newStore(t)

		summaries, err := store.ListMatches(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, summaries)
		assert.Empty(t, summaries)
	})

	t.Run("every write records one change", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		goal := newEvent("e1", "m1", ingestion.EventTypeGoal)
		foul := newEvent("e2", "m1", ingestion.EventTypeFoul)

		require.NoError(t, store.CreateMatch(ctx, newMatch("m1", kickoff, goal)))
		require.NoError(t, store.AppendEvent(ctx, "m1", foul,
			ingestion.Calculate("Lions", "Tigers", []ingestion.Event{goal, foul}), 1))

		// A rejected write records nothing.
		require.ErrorIs(t, store.CreateMatch(ctx, newMatch("m1", kickoff)), ingestion.ErrMatchExists)
		require.ErrorIs(t, store.AppendEvent(ctx, "m1", foul, ingestion.Statistics{}, 1), ingestion.ErrVersionConflict)

		pending, err := store.PendingChanges(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)

		assert.Equal(t, changes.EventInserted, pending[0].EventName)
		assert.Equal(t, int64(1), pending[0].Version)
		assert.Equal(t, []string{"e1"}, pending[0].Image.EventIDs())

		assert.Equal(t, changes.EventModified, pending[1].EventName)
		assert.Equal(t, int64(2), pending[1].Version)
		assert.Equal(t, []string{"e1", "e2"}, pending[1].Image.EventIDs())
		assert.Equal(t, "m1", pending[1].MatchID)
		assert.Less(t, pending[0].Sequence, pending[1].Sequence)
		assert.False(t, pending[1].OccurredAt.IsZero())

		limited, err := store.PendingChanges(ctx, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, pending[0].Sequence, limited[0].Sequence)

		require.NoError(t, store.MarkPublished(ctx, []int64{pending[0].Sequence}))

		rest, err := store.PendingChanges(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, pending[1].Sequence, rest[0].Sequence)

		require.NoError(t, store.MarkPublished(ctx, nil))
		require.NoError(t, store.MarkPublished(ctx, []int64{pending[1].Sequence}))

		none, err := store.PendingChanges(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("concurrent ingests lose no events", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 16

		cfg := ingestion.ServiceConfig{
			StoreTimeout: 5 * time.Second,
			RetryPolicy: ingestion.RetryPolicy{
				MaxAttempts:     writers,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
			},
		}
		service := ingestion.NewService(store, cfg)

		var wg sync.WaitGroup

		errs := make(chan error, writers)

		for i := range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				eventType := "foul"
				if i%4 == 0 {
					eventType = "goal"
				}

				_, err := service.Ingest(ctx, &ingestion.IngestRequest{
					MatchID:   "derby",
					Team:      "Lions",
					Opponent:  "Tigers",
					EventType: eventType,
					Timestamp: kickoff.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
				})
				errs <- err
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		match, err := store.GetMatch(ctx, "derby")
		require.NoError(t, err)

		assert.Len(t, match.Events, writers)
		assert.Equal(t, int64(writers), match.Version)
		assert.Equal(t, ingestion.Calculate("Lions", "Tigers", match.Events), match.Statistics)
		assert.Equal(t, writers/4, match.Statistics.TotalGoals)

		pending, err := store.PendingChanges(ctx, 100)
		require.NoError(t, err)
		require.Len(t, pending, writers)

		for i, n := range pending {
			assert.Equal(t, int64(i+1), n.Version, "change %d out of order", i)
		}
	})
}

// runTeamStoreContract checks the conditional writes of a team store.
func runTeamStoreContract(t *testing.T, newStore func(t *testing.T) aggregation.TeamStore) {
	t.Helper()

	t.Run("create get update", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetTeam(ctx, "Lions")
		require.ErrorIs(t, err, aggregation.ErrTeamNotFound)

		stats := aggregation.NewTeamStatistics("Lions")
		stats.Fold("m1", []ingestion.Event{
			newEvent("e1", "m1", ingestion.EventTypeGoal),
			newEvent("e2", "m1", ingestion.EventTypeFoul),
		})
		require.NoError(t, store.CreateTeam(ctx, stats))

		stored, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)
		assert.Equal(t, int64(1), stored.TotalGoalsScored)
		assert.Equal(t, map[string][]string{"m1": {"e1", "e2"}}, stored.ProcessedEvents)
		assert.False(t, stored.UpdatedAt.IsZero())

		require.ErrorIs(t, store.CreateTeam(ctx, aggregation.NewTeamStatistics("Lions")), aggregation.ErrTeamExists)

		stored.Fold("m2", []ingestion.Event{newEvent("e3", "m2", ingestion.EventTypeGoal)})
		require.NoError(t, store.UpdateTeam(ctx, stored, 1))

		updated, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, int64(2), updated.TotalGoalsScored)
		assert.Equal(t, []string{"m1", "m2"}, updated.Matches())

		err = store.UpdateTeam(ctx, stored, 1)
		require.ErrorIs(t, err, aggregation.ErrVersionConflict)

		unchanged, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)
		assert.Equal(t, int64(2), unchanged.Version)

		err = store.UpdateTeam(ctx, aggregation.NewTeamStatistics("Tigers"), 1)
		assert.ErrorIs(t, err, aggregation.ErrTeamNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateTeam(ctx, aggregation.NewTeamStatistics("Lions")))

		first, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)

		first.ProcessedEvents["m1"] = []string{"e1"}
		first.TotalGoalsScored = 99

		second, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)
		assert.Empty(t, second.ProcessedEvents)
		assert.Zero(t, second.TotalGoalsScored)
	})

	t.Run("concurrent folds for one team", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const matches = 8

		aggregator := aggregation.NewAggregator(store, ingestion.ServiceConfig{
			StoreTimeout: 5 * time.Second,
			RetryPolicy: ingestion.RetryPolicy{
				MaxAttempts:     matches + 1,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
			},
		})

		var wg sync.WaitGroup

		errs := make(chan error, matches)

		for i := range matches {
			wg.Add(1)

			go func() {
				defer wg.Done()

				matchID := fmt.Sprintf("m%d", i)
				image := newMatch(matchID, kickoff,
					newEvent(matchID+"-goal", matchID, ingestion.EventTypeGoal),
					newEvent(matchID+"-foul", matchID, ingestion.EventTypeFoul),
				)

				errs <- aggregator.Handle(ctx, changes.Notification{
					MatchID:   matchID,
					EventName: changes.EventInserted,
					Version:   1,
					Image:     image,
				})
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		stats, err := store.GetTeam(ctx, "Lions")
		require.NoError(t, err)
		assert.Equal(t, int64(matches), stats.TotalGoalsScored)
		assert.Len(t, stats.Matches(), matches)
	})
}
