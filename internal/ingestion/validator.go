package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxMatchIDLength  = 255
	maxTeamNameLength = 255

	// TimestampLayout is the canonical wire format of event timestamps:
	// UTC with millisecond precision, e.g. "2024-05-01T18:30:00.000Z".
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Sentinel errors for request validation failures.
// Validator wraps each of them in ErrValidation.
var (
	ErrNilRequest      = errors.New("request cannot be nil")
	ErrMissingMatchID  = errors.New("match_id is required")
	ErrMatchIDTooLong  = errors.New("match_id cannot exceed 255 characters")
	ErrTeamNameTooLong = errors.New("team cannot exceed 255 characters")
	ErrOpponentTooLong = errors.New("opponent cannot exceed 255 characters")
)

// timestampLayouts are tried in order when parsing a caller-supplied timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Validator checks ingest requests at the boundary, before any store access.
// Event details are stored as sent; only the match identity is constrained.
type Validator struct{}

// NewValidator creates a request validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil for an acceptable request, or an error wrapping
// ErrValidation and the specific sentinel.
func (v *Validator) Validate(req *IngestRequest) error {
	if req == nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNilRequest)
	}

	matchID := strings.TrimSpace(req.MatchID)
	if matchID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingMatchID)
	}

	if len(matchID) > maxMatchIDLength {
		return fmt.Errorf("%w: %w: got %d characters", ErrValidation, ErrMatchIDTooLong, len(matchID))
	}

	if len(req.Team) > maxTeamNameLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTeamNameTooLong)
	}

	if len(req.Opponent) > maxTeamNameLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrOpponentTooLong)
	}

	return nil
}

// ParseTimestamp normalizes a caller-supplied ISO-8601 timestamp to a UTC
// instant with millisecond precision. Empty or unparseable input yields now.
func ParseTimestamp(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)

	if raw != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return normalize(t)
			}
		}
	}

	return normalize(now)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
