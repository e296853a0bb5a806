package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

func TestClassify(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	testCases := []struct {
		name    string
		err     error
		want    error
		notWant error
	}{
		{
			name:    "canceled statement",
			err:     &pq.Error{Code: "57014", Message: "canceling statement due to user request"},
			want:    ingestion.ErrTimeout,
			notWant: ingestion.ErrStoreUnavailable,
		},
		{
			name:    "wrapped canceled statement",
			err:     fmt.Errorf("scan: %w", &pq.Error{Code: "57014"}),
			want:    ingestion.ErrTimeout,
			notWant: ingestion.ErrStoreUnavailable,
		},
		{
			name:    "deadline exceeded",
			err:     context.DeadlineExceeded,
			want:    ingestion.ErrTimeout,
			notWant: ingestion.ErrStoreUnavailable,
		},
		{
			name:    "admin shutdown",
			err:     &pq.Error{Code: "57P01"},
			want:    ingestion.ErrStoreUnavailable,
			notWant: ingestion.ErrTimeout,
		},
		{
			name:    "connection exception",
			err:     &pq.Error{Code: "08006"},
			want:    ingestion.ErrStoreUnavailable,
			notWant: ingestion.ErrTimeout,
		},
		{
			name:    "bad connection",
			err:     driver.ErrBadConn,
			want:    ingestion.ErrStoreUnavailable,
			notWant: ingestion.ErrTimeout,
		},
		{
			name:    "other failure",
			err:     errors.New("disk full"),
			want:    ingestion.ErrStoreUnavailable,
			notWant: ingestion.ErrTimeout,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("append event", tc.err)

			assert.ErrorIs(t, err, tc.want)
			assert.NotErrorIs(t, err, tc.notWant)
			assert.ErrorIs(t, err, tc.err)
			assert.Contains(t, err.Error(), "append event")
		})
	}

	assert.NoError(t, classify("append event", nil))
}
