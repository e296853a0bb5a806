package changes

import (
	"context"
	"errors"
	"log/slog"
)

const defaultMemoryBusCapacity = 1024

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("memory bus closed")

// MemoryBus is an in-process Publisher and Consumer.
//
// A single Run loop delivers notifications in publish order, so per-match order
// holds. A notification the handler does not acknowledge is retried with backoff
// before the next one is delivered. Used with PITCHLOG_STORAGE=memory and in tests.
type MemoryBus struct {
	ch     chan Notification
	done   chan struct{}
	logger *slog.Logger
}

// NewMemoryBus creates a bus buffering up to capacity notifications.
// A non-positive capacity selects the default.
func NewMemoryBus(capacity int, logger *slog.Logger) *MemoryBus {
	if capacity <= 0 {
		capacity = defaultMemoryBusCapacity
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryBus{
		ch:     make(chan Notification, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues notifications, blocking while the buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, notifications ...Notification) error {
	for _, n := range notifications {
		select {
		case <-b.done:
			return ErrBusClosed
		case <-ctx.Done():
			return ctx.Err()
		case b.ch <- n:
		}
	}

	return nil
}

// Run delivers notifications to handler until ctx is done or the bus is closed.
func (b *MemoryBus) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case n := <-b.ch:
			if !deliver(ctx, handler, n, b.logger) {
				return nil
			}
		}
	}
}

// Pending returns the number of notifications waiting for delivery.
func (b *MemoryBus) Pending() int {
	return len(b.ch)
}

// Close stops Run and rejects further publishes. It must be called at most once.
func (b *MemoryBus) Close() error {
	close(b.done)

	return nil
}
