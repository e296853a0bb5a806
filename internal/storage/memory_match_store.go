package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

var (
	_ ingestion.MatchStore  = (*InMemoryMatchStore)(nil)
	_ ingestion.MatchReader = (*InMemoryMatchStore)(nil)
	_ changes.Outbox        = (*InMemoryMatchStore)(nil)
)

type outboxEntry struct {
	notification changes.Notification
	published    bool
}

// InMemoryMatchStore keeps match aggregates and their change outbox in process
// memory. A single mutex makes each write and its outbox entry atomic.
type InMemoryMatchStore struct {
	mu      sync.RWMutex
	matches map[string]*ingestion.Match
	outbox  []outboxEntry
	nextSeq int64
	now     func() time.Time
}

// NewInMemoryMatchStore creates an empty store.
func NewInMemoryMatchStore() *InMemoryMatchStore {
	return &InMemoryMatchStore{
		matches: make(map[string]*ingestion.Match),
		now:     time.Now,
	}
}

// HealthCheck always succeeds.
func (s *InMemoryMatchStore) HealthCheck(context.Context) error {
	return nil
}

// GetMatch returns a copy of the stored aggregate.
func (s *InMemoryMatchStore) GetMatch(ctx context.Context, matchID string) (*ingestion.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, ingestion.ClassifyStoreError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrMatchNotFound, matchID)
	}

	return match.Clone(), nil
}

// ListMatches returns every match, newest first.
func (s *InMemoryMatchStore) ListMatches(ctx context.Context) ([]ingestion.MatchSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, ingestion.ClassifyStoreError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]ingestion.MatchSummary, 0, len(s.matches))
	for _, match := range s.matches {
		summaries = append(summaries, match.Summary())
	}

	slices.SortFunc(summaries, func(a, b ingestion.MatchSummary) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}

		return cmp.Compare(a.MatchID, b.MatchID)
	})

	return summaries, nil
}

// CreateMatch stores a copy of match with version 1.
func (s *InMemoryMatchStore) CreateMatch(ctx context.Context, match *ingestion.Match) error {
	if err := ctx.Err(); err != nil {
		return ingestion.ClassifyStoreError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[match.MatchID]; exists {
		return fmt.Errorf("%w: %s", ingestion.ErrMatchExists, match.MatchID)
	}

	stored := match.Clone()
	stored.Version = 1

	if stored.Events == nil {
		stored.Events = []ingestion.Event{}
	}

	s.matches[stored.MatchID] = stored
	s.record(changes.EventInserted, stored)

	return nil
}

// AppendEvent appends event when the stored version equals expectedVersion.
func (s *InMemoryMatchStore) AppendEvent(
	ctx context.Context,
	matchID string,
	event ingestion.Event,
	stats ingestion.Statistics,
	expectedVersion int64,
) error {
	if err := ctx.Err(); err != nil {
		return ingestion.ClassifyStoreError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("%w: %s", ingestion.ErrMatchNotFound, matchID)
	}

	if match.Version != expectedVersion {
		return fmt.Errorf("%w: match %s is at version %d, expected %d",
			ingestion.ErrVersionConflict, matchID, match.Version, expectedVersion)
	}

	next := match.Clone()
	next.Events = append(next.Events, event.Clone())
	next.Statistics = stats
	next.Version++

	s.matches[matchID] = next
	s.record(changes.EventModified, next)

	return nil
}

// record appends an outbox entry. Caller must hold the write lock.
func (s *InMemoryMatchStore) record(name changes.EventName, image *ingestion.Match) {
	s.nextSeq++

	s.outbox = append(s.outbox, outboxEntry{
		notification: changes.Notification{
			Sequence:   s.nextSeq,
			MatchID:    image.MatchID,
			EventName:  name,
			Version:    image.Version,
			Image:      image.Clone(),
			OccurredAt: s.now().UTC(),
		},
	})
}

// PendingChanges returns up to limit unpublished changes in sequence order.
func (s *InMemoryMatchStore) PendingChanges(ctx context.Context, limit int) ([]changes.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, ingestion.ClassifyStoreError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []changes.Notification

	for i := range s.outbox {
		if len(pending) >= limit {
			break
		}

		if s.outbox[i].published {
			continue
		}

		n := s.outbox[i].notification
		n.Image = n.Image.Clone()
		pending = append(pending, n)
	}

	return pending, nil
}

// MarkPublished flags the given sequences as published and drops the
// published prefix of the outbox.
func (s *InMemoryMatchStore) MarkPublished(ctx context.Context, sequences []int64) error {
	if err := ctx.Err(); err != nil {
		return ingestion.ClassifyStoreError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if slices.Contains(sequences, s.outbox[i].notification.Sequence) {
			s.outbox[i].published = true
		}
	}

	trim := 0
	for trim < len(s.outbox) && s.outbox[trim].published {
		trim++
	}

	s.outbox = slices.Delete(s.outbox, 0, trim)

	return nil
}
