// Package ingestion provides the match-event domain model and the event ingestion service.
//
// A match is stored as one aggregate document: the ordered event log plus the
// statistics derived from it. The ingestion service merges one event at a time
// into that document using the conditional-write contract defined by MatchStore.
package ingestion

import (
	"slices"
	"time"
)

type (
	// EventType is the kind of a match event.
	//
	// The value is free-form on the wire. Only the enumerated kinds below carry
	// meaning for statistics: "goal" counts toward goals and "foul" toward fouls.
	// Anything else is stored unchanged and counts toward neither.
	EventType string

	// Player identifies a participant of an event. Every field is optional.
	Player struct {
		Name     string `json:"name,omitempty"`
		Position string `json:"position,omitempty"`
		Number   *int   `json:"number,omitempty"`
	}

	// Event is a single match event. It is immutable once ID is assigned.
	//
	// ID is assigned by the ingestion service and is globally unique across all
	// matches. It is the key used to de-duplicate events in the match log and in
	// the team statistics fold.
	Event struct {
		ID        string    `json:"event_id"`   //nolint: tagliatelle
		MatchID   string    `json:"match_id"`   //nolint: tagliatelle
		Type      EventType `json:"event_type"` //nolint: tagliatelle
		Timestamp time.Time `json:"timestamp"`
		Player    *Player   `json:"player,omitempty"`
		GoalType  string    `json:"goal_type,omitempty"` //nolint: tagliatelle
		Minute    *int      `json:"minute,omitempty"`
		Assist    *Player   `json:"assist,omitempty"`
		VideoURL  string    `json:"video_url,omitempty"` //nolint: tagliatelle
	}

	// Statistics is the snapshot derived from a match's full event log.
	// It is always recomputed from scratch with Calculate.
	Statistics struct {
		Team                     string  `json:"team"`
		Opponent                 string  `json:"opponent"`
		TotalGoals               int     `json:"total_goals"`                //nolint: tagliatelle
		TotalFouls               int     `json:"total_fouls"`                //nolint: tagliatelle
		BallPossessionPercentage float64 `json:"ball_possession_percentage"` //nolint: tagliatelle
	}

	// Match is the aggregate document stored once per match.
	//
	// Invariants:
	//   - Events holds no two entries with the same ID
	//   - Events is in arrival order at the store, not timestamp order
	//   - Statistics == Calculate(Team, Opponent, Events) as of the last write
	//   - Version increases by exactly one on every successful write
	Match struct {
		MatchID    string     `json:"match_id"` //nolint: tagliatelle
		Team       string     `json:"team"`
		Opponent   string     `json:"opponent"`
		Date       time.Time  `json:"date"`
		Events     []Event    `json:"events"`
		Statistics Statistics `json:"statistics"`
		Version    int64      `json:"version"`
	}

	// MatchSummary is the listing projection of a match (no events, no statistics).
	MatchSummary struct {
		MatchID  string
		Team     string
		Opponent string
		Date     time.Time
	}

	// EventDetails carries the optional descriptive fields of an ingest request.
	EventDetails struct {
		Player   *Player
		GoalType string
		Minute   *int
		Assist   *Player
		VideoURL string
	}

	// IngestRequest is the input of Service.Ingest.
	// Only MatchID is required. Timestamp is an ISO-8601 string; an empty or
	// unparseable value is replaced with the ingestion time.
	IngestRequest struct {
		MatchID   string
		Timestamp string
		Team      string
		Opponent  string
		EventType string
		Details   *EventDetails
	}

	// Result is returned by a successful ingest.
	Result struct {
		EventID   string
		Timestamp time.Time
		// Created reports whether this event created the match aggregate.
		Created bool
	}
)

const (
	// EventTypeGoal counts toward total goals.
	EventTypeGoal EventType = "goal"

	// EventTypeFoul counts toward total fouls and lowers ball possession.
	EventTypeFoul EventType = "foul"

	// EventTypeSubstitution is stored without statistical effect.
	EventTypeSubstitution EventType = "substitution"

	// EventTypeCard is stored without statistical effect.
	EventTypeCard EventType = "card"

	// EventTypeOther is stored without statistical effect.
	EventTypeOther EventType = "other"
)

// KnownEventTypes returns the enumerated event kinds.
func KnownEventTypes() []EventType {
	return []EventType{
		EventTypeGoal,
		EventTypeFoul,
		EventTypeSubstitution,
		EventTypeCard,
		EventTypeOther,
	}
}

// IsKnown reports whether the type is one of the enumerated kinds.
func (et EventType) IsKnown() bool {
	return slices.Contains(KnownEventTypes(), et)
}

// IsGoal reports whether the event counts as a goal. Matching is exact.
func (et EventType) IsGoal() bool {
	return et == EventTypeGoal
}

// IsFoul reports whether the event counts as a foul. Matching is exact.
func (et EventType) IsFoul() bool {
	return et == EventTypeFoul
}

// String returns the raw event type.
func (et EventType) String() string {
	return string(et)
}

// HasEvent reports whether the event log already holds an event with the given ID.
func (m *Match) HasEvent(eventID string) bool {
	for i := range m.Events {
		if m.Events[i].ID == eventID {
			return true
		}
	}

	return false
}

// EventIDs returns the IDs of the event log in log order.
func (m *Match) EventIDs() []string {
	ids := make([]string, len(m.Events))
	for i := range m.Events {
		ids[i] = m.Events[i].ID
	}

	return ids
}

// Clone returns a deep copy of the aggregate. Stores hand out clones so that
// callers can never mutate stored state in place.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}

	clone := *m
	clone.Events = make([]Event, len(m.Events))

	for i := range m.Events {
		clone.Events[i] = m.Events[i].Clone()
	}

	return &clone
}

// Summary returns the listing projection of the aggregate.
func (m *Match) Summary() MatchSummary {
	return MatchSummary{
		MatchID:  m.MatchID,
		Team:     m.Team,
		Opponent: m.Opponent,
		Date:     m.Date,
	}
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Player = e.Player.clone()
	out.Assist = e.Assist.clone()

	if e.Minute != nil {
		minute := *e.Minute
		out.Minute = &minute
	}

	return out
}

func (p *Player) clone() *Player {
	if p == nil {
		return nil
	}

	out := *p

	if p.Number != nil {
		number := *p.Number
		out.Number = &number
	}

	return &out
}
