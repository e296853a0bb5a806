package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

// Fold outcomes reported to an Observer.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type (
	// TeamResolver maps a team name to the name its statistics are kept under.
	TeamResolver interface {
		CanonicalTeam(team string) string
	}

	// Observer receives one callback per handled notification.
	Observer interface {
		ObserveFold(outcome string, goals int, elapsed time.Duration)
	}

	// Aggregator folds change notifications into team statistics.
	// Safe for concurrent use; all coordination happens in the TeamStore.
	Aggregator struct {
		teams    TeamStore
		matches  ingestion.MatchReader
		resolver TeamResolver
		config   ingestion.ServiceConfig
		logger   *slog.Logger
		observer Observer
	}

	// Option configures an Aggregator.
	Option func(*Aggregator)

	passthrough struct{}
)

func (passthrough) CanonicalTeam(team string) string { return team }

// WithMatchReader sets the reader used for notifications without an image.
func WithMatchReader(matches ingestion.MatchReader) Option {
	return func(a *Aggregator) {
		a.matches = matches
	}
}

// WithResolver sets the team name resolver.
func WithResolver(resolver TeamResolver) Option {
	return func(a *Aggregator) {
		if resolver != nil {
			a.resolver = resolver
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(observer Observer) Option {
	return func(a *Aggregator) {
		a.observer = observer
	}
}

// NewAggregator creates an aggregator over teams. cfg supplies the per-call store
// timeout and the retry policy for team row version conflicts.
func NewAggregator(teams TeamStore, cfg ingestion.ServiceConfig, opts ...Option) *Aggregator {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = ingestion.DefaultStoreTimeout
	}

	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = ingestion.DefaultRetryPolicy()
	}

	a := &Aggregator{
		teams:    teams,
		resolver: passthrough{},
		config:   cfg,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Handle folds one notification. It matches changes.Handler.
//
// A nil return acknowledges the notification, including no-ops and records that
// can never be folded. An error means the notification was not processed and
// must be delivered again: the aggregate was unreadable, the team store failed
// or timed out, or conflicts outlasted the retry policy.
func (a *Aggregator) Handle(ctx context.Context, n changes.Notification) error {
	start := time.Now()

	goals, outcome, err := a.handle(ctx, n)
	if err != nil {
		outcome = OutcomeFailed

		a.logger.Warn("Team statistics fold failed",
			slog.String("match_id", n.MatchID),
			slog.Int64("version", n.Version),
			slog.String("error", err.Error()),
		)
	}

	if a.observer != nil {
		a.observer.ObserveFold(outcome, goals, time.Since(start))
	}

	return err
}

func (a *Aggregator) handle(ctx context.Context, n changes.Notification) (int, string, error) {
	if !n.EventName.IsValid() {
		a.logger.Debug("Ignoring change notification",
			slog.String("match_id", n.MatchID),
			slog.String("event_name", string(n.EventName)),
		)

		return 0, OutcomeSkipped, nil
	}

	image, err := a.image(ctx, n)
	if err != nil {
		return 0, OutcomeFailed, err
	}

	if image == nil {
		return 0, OutcomeSkipped, nil
	}

	team := a.resolver.CanonicalTeam(image.Team)
	if team == "" {
		a.logger.Warn("Change notification has no team, acknowledging without fold",
			slog.String("match_id", n.MatchID),
			slog.Int64("version", n.Version),
		)

		return 0, OutcomeSkipped, nil
	}

	return a.fold(ctx, team, n.MatchID, image.Events)
}

// image returns the aggregate a notification describes. A nil image without
// error means the notification can never be folded.
func (a *Aggregator) image(ctx context.Context, n changes.Notification) (*ingestion.Match, error) {
	if n.Image != nil {
		return n.Image, nil
	}

	if a.matches == nil {
		a.logger.Warn("Keys-only change notification and no match reader configured",
			slog.String("match_id", n.MatchID))

		return nil, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	match, err := a.matches.GetMatch(readCtx, n.MatchID)
	if err != nil {
		if errors.Is(err, ingestion.ErrMatchNotFound) {
			a.logger.Warn("Change notification for unknown match, acknowledging without fold",
				slog.String("match_id", n.MatchID))

			return nil, nil
		}

		return nil, fmt.Errorf("failed to read match %s: %w", n.MatchID, ingestion.ClassifyStoreError(err))
	}

	return match, nil
}

func (a *Aggregator) fold(ctx context.Context, team, matchID string, events []ingestion.Event) (int, string, error) {
	goals := 0
	outcome := OutcomeNoop

	err := a.config.RetryPolicy.Do(ctx, func(attempt int) error {
		goals, outcome = 0, OutcomeNoop

		current, exists, err := a.getTeam(ctx, team)
		if err != nil {
			return err
		}

		fresh := current.Unprocessed(matchID, events)
		if len(fresh) == 0 {
			return nil
		}

		expected := current.Version
		goals = current.Fold(matchID, fresh)
		outcome = OutcomeApplied

		if !exists {
			err = a.createTeam(ctx, current)
			if errors.Is(err, ErrTeamExists) {
				return fmt.Errorf("%w: team %s created concurrently", ErrVersionConflict, team)
			}
		} else {
			err = a.updateTeam(ctx, current, expected)
		}

		if err != nil && !errors.Is(err, ErrVersionConflict) {
			return ingestion.ClassifyStoreError(err)
		}

		if err == nil {
			a.logger.Debug("Folded events into team statistics",
				slog.String("team", team),
				slog.String("match_id", matchID),
				slog.Int("events", len(fresh)),
				slog.Int("goals", goals),
				slog.Int("attempt", attempt),
			)
		}

		return err
	})
	if err != nil {
		return 0, OutcomeFailed, err
	}

	return goals, outcome, nil
}

// getTeam returns the stored record, or a fresh one and false when none exists.
func (a *Aggregator) getTeam(ctx context.Context, team string) (*TeamStatistics, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	current, err := a.teams.GetTeam(ctx, team)
	if errors.Is(err, ErrTeamNotFound) {
		return NewTeamStatistics(team), false, nil
	}

	if err != nil {
		return nil, false, ingestion.ClassifyStoreError(err)
	}

	return current, true, nil
}

func (a *Aggregator) createTeam(ctx context.Context, stats *TeamStatistics) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	return a.teams.CreateTeam(ctx, stats)
}

func (a *Aggregator) updateTeam(ctx context.Context, stats *TeamStatistics, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	return a.teams.UpdateTeam(ctx, stats, expectedVersion)
}
