package aggregation

import "context"

// TeamStore is the persistence contract of the aggregator, implemented in
// internal/storage. Writes are conditional in the same way as ingestion.MatchStore.
type TeamStore interface {
	// GetTeam returns the record for team or ErrTeamNotFound.
	GetTeam(ctx context.Context, team string) (*TeamStatistics, error)

	// CreateTeam inserts stats with Version 1, or returns ErrTeamExists.
	CreateTeam(ctx context.Context, stats *TeamStatistics) error

	// UpdateTeam replaces the totals and processed events of stats.Team and
	// increments its version, only when the stored version equals expectedVersion.
	// Returns ErrVersionConflict otherwise, ErrTeamNotFound for a missing row.
	UpdateTeam(ctx context.Context, stats *TeamStatistics, expectedVersion int64) error
}

// TeamReader is the read-only query side over team statistics.
type TeamReader interface {
	GetTeam(ctx context.Context, team string) (*TeamStatistics, error)
}
