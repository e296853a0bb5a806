// Package changes carries match aggregate change notifications from the store to
// the team statistics aggregator.
//
// Every aggregate write records one notification in the store's outbox within the
// same transaction. A Relay publishes pending notifications to a transport (Kafka,
// or an in-memory bus) and marks them published afterwards, which gives
// at-least-once delivery ordered per match. Consumers must tolerate duplicates and
// must not assume one notification per write.
package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

// EventName describes the kind of write a notification reports.
type EventName string

const (
	// EventInserted reports the creation of a match aggregate.
	EventInserted EventName = "inserted"

	// EventModified reports an append to an existing aggregate.
	EventModified EventName = "modified"
)

var (
	// ErrMalformedNotification indicates a payload that cannot be decoded into a
	// usable notification. Redelivering it would not help.
	ErrMalformedNotification = errors.New("malformed change notification")

	// ErrUnknownEventName indicates an event name outside inserted/modified.
	ErrUnknownEventName = errors.New("unknown event name")
)

// Notification is one change record for a match aggregate.
//
// Image is the aggregate as of Version. It may be nil for keys-only records, in
// which case consumers read the current aggregate themselves.
type Notification struct {
	// Sequence is the outbox position. It is strictly increasing per store.
	Sequence   int64            `json:"sequence"`
	MatchID    string           `json:"match_id"`   //nolint: tagliatelle
	EventName  EventName        `json:"event_name"` //nolint: tagliatelle
	Version    int64            `json:"version"`
	Image      *ingestion.Match `json:"image,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"` //nolint: tagliatelle
}

// IsValid reports whether the event name is one of the known kinds.
func (n EventName) IsValid() bool {
	return n == EventInserted || n == EventModified
}

// Encode serializes a notification to its JSON wire form.
func Encode(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification for match %s: %w", n.MatchID, err)
	}

	return data, nil
}

// Decode parses a notification from its JSON wire form.
//
// Unknown event names decode successfully; consumers decide whether to act on them.
func Decode(data []byte) (Notification, error) {
	var n Notification

	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}

	if n.MatchID == "" {
		return Notification{}, fmt.Errorf("%w: match_id is empty", ErrMalformedNotification)
	}

	if n.Image != nil && n.Image.MatchID != "" && n.Image.MatchID != n.MatchID {
		return Notification{}, fmt.Errorf("%w: image belongs to match %s, record to %s",
			ErrMalformedNotification, n.Image.MatchID, n.MatchID)
	}

	return n, nil
}
