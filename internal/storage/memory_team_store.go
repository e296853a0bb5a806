package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

var (
	_ aggregation.TeamStore  = (*InMemoryTeamStore)(nil)
	_ aggregation.TeamReader = (*InMemoryTeamStore)(nil)
)

// InMemoryTeamStore keeps team statistics in process memory.
type InMemoryTeamStore struct {
	mu    sync.RWMutex
	teams map[string]*aggregation.TeamStatistics
	now   func() time.Time
}

// NewInMemoryTeamStore creates an empty store.
func NewInMemoryTeamStore() *InMemoryTeamStore {
	return &InMemoryTeamStore{
		teams: make(map[string]*aggregation.TeamStatistics),
		now:   time.Now,
	}
}

// GetTeam returns a copy of the record for team.
func (s *InMemoryTeamStore) GetTeam(ctx context.Context, team string) (*aggregation.TeamStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, ingestion.ClassifyStoreError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.teams[team]
	if !ok {
		return nil, fmt.Errorf("%w: %s", aggregation.ErrTeamNotFound, team)
	}

	return stats.Clone(), nil
}

// CreateTeam stores a copy of stats with version 1.
func (s *InMemoryTeamStore) CreateTeam(ctx context.Context, stats *aggregation.TeamStatistics) error {
	if err := ctx.Err(); err != nil {
		return ingestion.ClassifyStoreError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.teams[stats.Team]; exists {
		return fmt.Errorf("%w: %s", aggregation.ErrTeamExists, stats.Team)
	}

	stored := stats.Clone()
	stored.Version = 1
	stored.UpdatedAt = s.now().UTC()

	s.teams[stored.Team] = stored

	return nil
}

// UpdateTeam replaces the record when its version equals expectedVersion.
func (s *InMemoryTeamStore) UpdateTeam(ctx context.Context, stats *aggregation.TeamStatistics, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return ingestion.ClassifyStoreError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.teams[stats.Team]
	if !ok {
		return fmt.Errorf("%w: %s", aggregation.ErrTeamNotFound, stats.Team)
	}

	if current.Version != expectedVersion {
		return fmt.Errorf("%w: team %s is at version %d, expected %d",
			aggregation.ErrVersionConflict, stats.Team, current.Version, expectedVersion)
	}

	stored := stats.Clone()
	stored.Version = current.Version + 1
	stored.UpdatedAt = s.now().UTC()

	s.teams[stored.Team] = stored

	return nil
}
