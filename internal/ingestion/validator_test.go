package ingestion

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	negative := -1
	minute := 45

	tests := []struct {
		name    string
		req     *IngestRequest
		wantErr error
	}{
		{
			name: "only match id",
			req:  &IngestRequest{MatchID: "m1"},
		},
		{
			name: "complete request",
			req: &IngestRequest{
				MatchID:   "m1",
				Timestamp: "2024-05-01T18:30:00Z",
				Team:      "Lions",
				Opponent:  "Tigers",
				EventType: "goal",
				Details: &EventDetails{
					Player:   &Player{Name: "Ada"},
					GoalType: "header",
					Minute:   &minute,
				},
			},
		},
		{
			name: "free-form event type is accepted",
			req:  &IngestRequest{MatchID: "m1", EventType: "corner"},
		},
		{
			name:    "nil request",
			req:     nil,
			wantErr: ErrNilRequest,
		},
		{
			name:    "missing match id",
			req:     &IngestRequest{Team: "Lions"},
			wantErr: ErrMissingMatchID,
		},
		{
			name:    "blank match id",
			req:     &IngestRequest{MatchID: "   "},
			wantErr: ErrMissingMatchID,
		},
		{
			name:    "match id too long",
			req:     &IngestRequest{MatchID: strings.Repeat("m", 256)},
			wantErr: ErrMatchIDTooLong,
		},
		{
			name:    "team too long",
			req:     &IngestRequest{MatchID: "m1", Team: strings.Repeat("t", 256)},
			wantErr: ErrTeamNameTooLong,
		},
		{
			name: "negative minute is stored as sent",
			req:  &IngestRequest{MatchID: "m1", Details: &EventDetails{Minute: &negative}},
		},
		{
			name: "negative player numbers are stored as sent",
			req: &IngestRequest{
				MatchID: "m1",
				Details: &EventDetails{
					Player: &Player{Number: &negative},
					Assist: &Player{Number: &negative},
				},
			},
		},
	}

	validator := NewValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.req)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}

				return
			}

			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want wrapped ErrValidation", err)
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Date(2024, 5, 1, 20, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "RFC3339 UTC",
			raw:  "2024-05-01T18:30:00Z",
			want: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "offset normalized to UTC",
			raw:  "2024-05-01T20:30:00+02:00",
			want: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "sub-millisecond precision truncated",
			raw:  "2024-05-01T18:30:00.123987Z",
			want: time.Date(2024, 5, 1, 18, 30, 0, 123000000, time.UTC),
		},
		{
			name: "no zone treated as UTC",
			raw:  "2024-05-01T18:30:00.5",
			want: time.Date(2024, 5, 1, 18, 30, 0, 500000000, time.UTC),
		},
		{
			name: "space separated",
			raw:  "2024-05-01 18:30:00",
			want: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "date only",
			raw:  "2024-05-01",
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "empty falls back to now",
			raw:  "",
			want: now.Truncate(time.Millisecond),
		},
		{
			name: "unparseable falls back to now",
			raw:  "yesterday at noon",
			want: now.Truncate(time.Millisecond),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.raw, now)

			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.raw, got, tt.want)
			}

			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) location = %v, want UTC", tt.raw, got.Location())
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ts := time.Date(2024, 5, 1, 18, 30, 0, 7000000, time.UTC)

	if got, want := FormatTimestamp(ts), "2024-05-01T18:30:00.007Z"; got != want {
		t.Errorf("FormatTimestamp() = %q, want %q", got, want)
	}
}
