package changes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

const (
	defaultRelayInterval  = 500 * time.Millisecond
	defaultRelayBatchSize = 100
)

type (
	// Outbox is the store side of the change mechanism.
	Outbox interface {
		// PendingChanges returns up to limit unpublished notifications in sequence order.
		PendingChanges(ctx context.Context, limit int) ([]Notification, error)

		// MarkPublished flags the notifications with the given sequences as published.
		MarkPublished(ctx context.Context, sequences []int64) error
	}

	// RelayObserver receives relay progress. internal/metrics implements it.
	RelayObserver interface {
		ObserveRelay(published int, err error)
	}

	// RelayConfig holds relay polling settings.
	RelayConfig struct {
		Interval  time.Duration
		BatchSize int
	}

	// Relay moves notifications from an Outbox to a Publisher.
	//
	// A batch is marked published only after Publish returned, so a crash between
	// the two steps republishes the batch. Consumers are idempotent and absorb it.
	// Run one Relay per outbox; concurrent relays would publish rows twice.
	Relay struct {
		outbox    Outbox
		publisher Publisher
		config    RelayConfig
		logger    *slog.Logger
		observer  RelayObserver
	}
)

// LoadRelayConfig loads relay settings from environment variables.
func LoadRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:  config.GetEnvDuration("PITCHLOG_RELAY_INTERVAL", defaultRelayInterval),
		BatchSize: config.GetEnvInt("PITCHLOG_RELAY_BATCH_SIZE", defaultRelayBatchSize),
	}
}

// NewRelay creates a relay. observer may be nil.
func NewRelay(outbox Outbox, publisher Publisher, cfg RelayConfig, logger *slog.Logger, observer RelayObserver) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRelayInterval
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRelayBatchSize
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		observer:  observer,
	}
}

// Run flushes the outbox every Interval until ctx is done. Flush failures are
// logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Starting change relay",
		slog.Duration("interval", r.config.Interval),
		slog.Int("batch_size", r.config.BatchSize),
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Change relay stopped")

			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Change relay flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush publishes pending notifications batch by batch until the outbox is
// drained. It returns the number of notifications published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0

	for {
		published, err := r.flushBatch(ctx)
		total += published

		if r.observer != nil && (published > 0 || err != nil) {
			r.observer.ObserveRelay(published, err)
		}

		if err != nil {
			return total, err
		}

		if published < r.config.BatchSize {
			return total, nil
		}
	}
}

func (r *Relay) flushBatch(ctx context.Context) (int, error) {
	pending, err := r.outbox.PendingChanges(ctx, r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending changes: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, pending...); err != nil {
		return 0, err
	}

	sequences := make([]int64, len(pending))
	for i := range pending {
		sequences[i] = pending[i].Sequence
	}

	if err := r.outbox.MarkPublished(ctx, sequences); err != nil {
		return 0, fmt.Errorf("failed to mark %d changes published: %w", len(sequences), err)
	}

	return len(pending), nil
}
