package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts     = 5
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 100 * time.Millisecond
)

// RetryPolicy bounds optimistic-concurrency retries.
//
// Only ErrVersionConflict is retried. Attempts are spaced by a jittered
// exponential backoff between InitialInterval and MaxInterval. When MaxAttempts
// is exhausted the last conflict is surfaced wrapped in ErrContention.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured: five
// attempts between 5ms and 100ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

// Do runs op until it succeeds, fails with anything other than a version
// conflict, the context ends, or MaxAttempts is reached. op receives the
// 1-based attempt number.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	attempt := 0

	err := backoff.Retry(func() error {
		attempt++

		err := op(attempt)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrVersionConflict) {
			return err
		}

		return backoff.Permanent(err)
	}, p.backOff(ctx))

	if errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("%w: gave up after %d attempts: %w", ErrContention, attempt, err)
	}

	return err
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 0

	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}

	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}

	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx) //nolint:gosec // maxAttempts >= 1
}
