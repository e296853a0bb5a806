package ingestion

import (
	"context"
	"errors"
	"fmt"
)

// Caller-visible failures. Use errors.Is to branch on them.
var (
	// ErrValidation indicates the request is malformed. The caller must fix it;
	// retrying unchanged will fail again. Raised before any store access.
	ErrValidation = errors.New("validation failed")

	// ErrContention indicates optimistic-concurrency retries ran out. The caller
	// may retry the whole request.
	ErrContention = errors.New("too much contention on match")

	// ErrTimeout indicates a store call exceeded its deadline. The conditional
	// write either happened or did not; it never half-happened.
	ErrTimeout = errors.New("store call timed out")

	// ErrStoreUnavailable indicates the store could not serve the call.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store-level results. These never reach an ingestion caller as such.
var (
	// ErrMatchExists is returned by CreateMatch when the row already exists.
	ErrMatchExists = errors.New("match already exists")

	// ErrMatchNotFound is returned when no aggregate exists for a match ID.
	ErrMatchNotFound = errors.New("match not found")

	// ErrVersionConflict is returned by a conditional write whose expected
	// version is stale.
	ErrVersionConflict = errors.New("version conflict")
)

// IsRetriable reports whether a failed ingest may be retried unchanged.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrContention) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStoreUnavailable)
}

// ClassifyStoreError maps a raw store failure onto the caller-visible taxonomy.
//
// Deadline expiry becomes ErrTimeout; cancellation of the caller's own context is
// passed through; anything else not already classified becomes ErrStoreUnavailable.
func ClassifyStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrContention):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
