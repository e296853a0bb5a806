package ingestion

import "context"

// MatchStore defines the persistence contract the ingestion service needs.
//
// The domain owns this interface; PostgreSQL and in-memory implementations live
// in internal/storage. Every write must be atomic and must fire the store's change
// mechanism exactly once, which is what the team statistics aggregator observes.
//
// Concurrency contract:
//   - CreateMatch is insert-if-absent. A concurrent creator that lost the race
//     gets ErrMatchExists and nothing is written.
//   - AppendEvent is a compare-and-swap on Version. It appends exactly one event,
//     replaces Statistics and increments Version, but only when the stored
//     Version still equals expectedVersion. Otherwise it returns ErrVersionConflict
//     and nothing is written.
//
// Without the conditional form two concurrent ingests for the same match could
// both read the same prior state and the second write would drop the first event.
type MatchStore interface {
	// GetMatch returns the current aggregate or ErrMatchNotFound.
	GetMatch(ctx context.Context, matchID string) (*Match, error)

	// CreateMatch stores a new aggregate with Version 1.
	// Returns ErrMatchExists when a row for match.MatchID already exists.
	CreateMatch(ctx context.Context, match *Match) error

	// AppendEvent appends event to the log and replaces the statistics snapshot
	// when the stored version equals expectedVersion.
	// Returns ErrVersionConflict when the version moved, ErrMatchNotFound when
	// there is no such match.
	AppendEvent(ctx context.Context, matchID string, event Event, stats Statistics, expectedVersion int64) error
}

// MatchReader is the read-only query side over stored aggregates.
// Reads return whatever the last write stored; nothing is derived on the read path.
type MatchReader interface {
	// ListMatches returns every match without events or statistics.
	ListMatches(ctx context.Context) ([]MatchSummary, error)

	// GetMatch returns the current aggregate or ErrMatchNotFound.
	GetMatch(ctx context.Context, matchID string) (*Match, error)
}
