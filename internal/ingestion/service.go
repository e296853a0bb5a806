package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

// DefaultStoreTimeout bounds a single store call when nothing is configured.
const DefaultStoreTimeout = 5 * time.Second

// Outcome labels reported to an Observer.
const (
	OutcomeCreated     = "created"
	OutcomeAppended    = "appended"
	OutcomeValidation  = "validation_error"
	OutcomeContention  = "contention"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "store_unavailable"
	OutcomeCanceled    = "canceled"
)

type (
	// ServiceConfig holds ingestion service configuration.
	ServiceConfig struct {
		// StoreTimeout bounds every individual store call.
		StoreTimeout time.Duration
		RetryPolicy  RetryPolicy
	}

	// Observer receives one callback per Ingest call.
	// internal/metrics provides the Prometheus implementation.
	Observer interface {
		ObserveIngest(outcome string, attempts int, elapsed time.Duration)
	}

	// Service merges incoming events into match aggregates.
	//
	// Service holds no per-match state and is safe for concurrent use. All
	// coordination between concurrent ingests for one match happens in the store
	// through the conditional writes of MatchStore.
	Service struct {
		store     MatchStore
		config    ServiceConfig
		validator *Validator
		logger    *slog.Logger
		observer  Observer
		now       func() time.Time
		newID     func() string
	}

	// Option configures a Service.
	Option func(*Service)
)

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() ServiceConfig {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = config.GetEnvInt("PITCHLOG_MAX_ATTEMPTS", policy.MaxAttempts)
	policy.InitialInterval = config.GetEnvDuration("PITCHLOG_RETRY_INITIAL_INTERVAL", policy.InitialInterval)
	policy.MaxInterval = config.GetEnvDuration("PITCHLOG_RETRY_MAX_INTERVAL", policy.MaxInterval)

	return ServiceConfig{
		StoreTimeout: config.GetEnvDuration("PITCHLOG_STORE_TIMEOUT", DefaultStoreTimeout),
		RetryPolicy:  policy,
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// WithClock overrides the ingestion-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService creates an ingestion service over store.
// Zero config values fall back to defaults.
func NewService(store MatchStore, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = DefaultRetryPolicy()
	}

	s := &Service{
		store:     store,
		config:    cfg,
		validator: NewValidator(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ingest assigns the event an ID and a timestamp and merges it into its match.
//
// A successful call performs exactly one aggregate write: either the creation of
// a one-event aggregate or one conditional append. Failures are ErrValidation,
// ErrContention, ErrTimeout, ErrStoreUnavailable or the caller's own context error.
// Resubmitting a request produces a new event.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*Result, error) {
	start := s.now()

	if err := s.validator.Validate(req); err != nil {
		s.observe(OutcomeValidation, 0, start)

		return nil, err
	}

	event := s.newEvent(req, start)

	created, attempts, err := s.merge(ctx, req, event)
	if err != nil {
		s.observe(outcomeOf(err), attempts, start)
		s.logger.Warn("Event ingestion failed",
			slog.String("match_id", event.MatchID),
			slog.String("event_id", event.ID),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	outcome := OutcomeAppended
	if created {
		outcome = OutcomeCreated
	}

	s.observe(outcome, attempts, start)
	s.logger.Debug("Event ingested",
		slog.String("match_id", event.MatchID),
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type.String()),
		slog.Bool("created", created),
		slog.Int("attempts", attempts),
	)

	return &Result{EventID: event.ID, Timestamp: event.Timestamp, Created: created}, nil
}

// merge performs the create-if-absent then conditional-append protocol.
// It returns whether the aggregate was created and the number of store write attempts.
func (s *Service) merge(ctx context.Context, req *IngestRequest, event Event) (bool, int, error) {
	match := &Match{
		MatchID:    event.MatchID,
		Team:       req.Team,
		Opponent:   req.Opponent,
		Date:       event.Timestamp,
		Events:     []Event{event},
		Statistics: Calculate(req.Team, req.Opponent, []Event{event}),
		Version:    1,
	}

	err := s.createMatch(ctx, match)
	if err == nil {
		return true, 1, nil
	}

	if !errors.Is(err, ErrMatchExists) {
		return false, 1, ClassifyStoreError(err)
	}

	attempts := 1

	err = s.config.RetryPolicy.Do(ctx, func(attempt int) error {
		attempts = attempt + 1

		return s.appendOnce(ctx, event)
	})
	if err != nil {
		return false, attempts, ClassifyStoreError(err)
	}

	return false, attempts, nil
}

// appendOnce reads the aggregate, recomputes statistics over the extended log and
// attempts one conditional append against the version it read.
func (s *Service) appendOnce(ctx context.Context, event Event) error {
	current, err := s.getMatch(ctx, event.MatchID)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			// The row was reported as existing; treat a vanished row like a lost race.
			return fmt.Errorf("%w: match %s disappeared between writes", ErrVersionConflict, event.MatchID)
		}

		return ClassifyStoreError(err)
	}

	if current.HasEvent(event.ID) {
		return nil
	}

	events := make([]Event, 0, len(current.Events)+1)
	events = append(events, current.Events...)
	events = append(events, event)

	stats := Calculate(current.Team, current.Opponent, events)

	err = s.appendEvent(ctx, event, stats, current.Version)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict):
		s.logger.Debug("Version conflict on append, retrying",
			slog.String("match_id", event.MatchID),
			slog.Int64("expected_version", current.Version),
		)

		return err
	default:
		return ClassifyStoreError(err)
	}
}

func (s *Service) createMatch(ctx context.Context, match *Match) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.store.CreateMatch(ctx, match)
}

func (s *Service) getMatch(ctx context.Context, matchID string) (*Match, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.store.GetMatch(ctx, matchID)
}

func (s *Service) appendEvent(ctx context.Context, event Event, stats Statistics, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.store.AppendEvent(ctx, event.MatchID, event, stats, expectedVersion)
}

func (s *Service) newEvent(req *IngestRequest, now time.Time) Event {
	event := Event{
		ID:        s.newID(),
		MatchID:   strings.TrimSpace(req.MatchID),
		Type:      EventType(req.EventType),
		Timestamp: ParseTimestamp(req.Timestamp, now),
	}

	if d := req.Details; d != nil {
		event.Player = d.Player.clone()
		event.GoalType = d.GoalType
		event.Assist = d.Assist.clone()
		event.VideoURL = d.VideoURL

		if d.Minute != nil {
			minute := *d.Minute
			event.Minute = &minute
		}
	}

	return event
}

func (s *Service) observe(outcome string, attempts int, start time.Time) {
	if s.observer == nil {
		return
	}

	s.observer.ObserveIngest(outcome, attempts, s.now().Sub(start))
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrContention):
		return OutcomeContention
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeCanceled
	}
}
