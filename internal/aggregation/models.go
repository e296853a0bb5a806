// Package aggregation folds match change notifications into cumulative per-team
// statistics.
//
// The fold is a set difference: events in a notification's aggregate image that
// are not yet recorded as processed for that match are counted, then recorded,
// in one conditional write of the team row. Redelivered, coalesced or stale
// notifications therefore never count an event twice.
package aggregation

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

var (
	// ErrTeamExists is returned by CreateTeam when the row already exists.
	ErrTeamExists = errors.New("team statistics already exist")

	// ErrTeamNotFound is returned when no statistics exist for a team.
	ErrTeamNotFound = errors.New("team statistics not found")

	// ErrVersionConflict is returned by UpdateTeam when the expected version is stale.
	// It is the ingestion sentinel so both stores share one retry policy.
	ErrVersionConflict = ingestion.ErrVersionConflict
)

// TeamStatistics is the cumulative record of one team.
//
// ProcessedEvents holds, per match ID, the IDs of the events already folded into
// TotalGoalsScored. Version increases by one on every successful write.
type TeamStatistics struct {
	Team             string              `json:"team"`
	TotalGoalsScored int64               `json:"total_goals_scored"` //nolint: tagliatelle
	ProcessedEvents  map[string][]string `json:"processed_events"`   //nolint: tagliatelle
	Version          int64               `json:"version"`
	UpdatedAt        time.Time           `json:"updated_at"` //nolint: tagliatelle
}

// NewTeamStatistics returns the empty record a team starts from.
func NewTeamStatistics(team string) *TeamStatistics {
	return &TeamStatistics{
		Team:            team,
		ProcessedEvents: make(map[string][]string),
	}
}

// Clone returns a deep copy.
func (ts *TeamStatistics) Clone() *TeamStatistics {
	if ts == nil {
		return nil
	}

	clone := *ts
	clone.ProcessedEvents = make(map[string][]string, len(ts.ProcessedEvents))

	for matchID, ids := range ts.ProcessedEvents {
		clone.ProcessedEvents[matchID] = slices.Clone(ids)
	}

	return &clone
}

// Unprocessed returns the events of matchID not yet folded, in log order.
func (ts *TeamStatistics) Unprocessed(matchID string, events []ingestion.Event) []ingestion.Event {
	seen := make(map[string]struct{}, len(ts.ProcessedEvents[matchID]))
	for _, id := range ts.ProcessedEvents[matchID] {
		seen[id] = struct{}{}
	}

	var fresh []ingestion.Event

	for i := range events {
		if _, ok := seen[events[i].ID]; ok {
			continue
		}

		seen[events[i].ID] = struct{}{}
		fresh = append(fresh, events[i])
	}

	return fresh
}

// Fold records events as processed for matchID and adds their goals to the total.
// It returns the number of goals added. Callers pass only Unprocessed events.
func (ts *TeamStatistics) Fold(matchID string, events []ingestion.Event) int {
	if ts.ProcessedEvents == nil {
		ts.ProcessedEvents = make(map[string][]string)
	}

	goals := 0

	for i := range events {
		if events[i].Type.IsGoal() {
			goals++
		}

		ts.ProcessedEvents[matchID] = append(ts.ProcessedEvents[matchID], events[i].ID)
	}

	ts.TotalGoalsScored += int64(goals)

	return goals
}

// Matches returns the IDs of the matches folded into the record, sorted.
func (ts *TeamStatistics) Matches() []string {
	return slices.Sorted(maps.Keys(ts.ProcessedEvents))
}
