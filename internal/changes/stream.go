package changes

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRedeliveryInitial = 100 * time.Millisecond
	defaultRedeliveryMax     = 10 * time.Second
)

type (
	// Publisher sends notifications to a transport, preserving their order per match.
	Publisher interface {
		Publish(ctx context.Context, notifications ...Notification) error
	}

	// Handler processes one notification. A nil return acknowledges it; an error
	// leaves it unacknowledged so that it is delivered again.
	Handler func(ctx context.Context, n Notification) error

	// Consumer delivers notifications to a Handler until ctx is done.
	Consumer interface {
		Run(ctx context.Context, handler Handler) error
	}
)

// deliver calls handler until it acknowledges n or ctx is done, backing off
// between attempts. It reports whether n was acknowledged.
func deliver(ctx context.Context, handler Handler, n Notification, logger *slog.Logger) bool {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = defaultRedeliveryInitial
	exp.MaxInterval = defaultRedeliveryMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	err := backoff.RetryNotify(
		func() error { return handler(ctx, n) },
		backoff.WithContext(exp, ctx),
		func(err error, wait time.Duration) {
			logger.Warn("Change notification not acknowledged, redelivering",
				slog.String("match_id", n.MatchID),
				slog.Int64("version", n.Version),
				slog.Int64("sequence", n.Sequence),
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
		},
	)

	return err == nil
}
