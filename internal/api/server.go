package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
	"github.com/pitchlog-io/pitchlog/internal/metrics"
	"github.com/pitchlog-io/pitchlog/internal/storage"
)

// Version is reported by /health and the X-Pitchlog-Version header.
// Release builds set it with -ldflags "-X github.com/pitchlog-io/pitchlog/internal/api.Version=...".
var Version = "dev" //nolint: gochecknoglobals

type (
	// Ingester merges one event into its match aggregate.
	// *ingestion.Service implements it.
	Ingester interface {
		Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.Result, error)
	}

	// HealthChecker reports whether the storage backend can serve requests.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// Dependencies are the runtime collaborators of the server.
	// Ingester, Matches and Teams are required; the rest may be nil.
	Dependencies struct {
		Ingester Ingester
		Matches  ingestion.MatchReader
		Teams    aggregation.TeamReader
		// Resolver maps a requested team name to its canonical statistics row.
		Resolver aggregation.TeamResolver
		// Health backs /ready. Nil reports ready unconditionally.
		Health HealthChecker
		// Metrics backs /metrics and request metrics. Nil disables both.
		Metrics *metrics.Recorder
		// APIKeyStore enables authentication of writes. Nil disables it.
		APIKeyStore storage.APIKeyStore
		// RateLimiter enables rate limiting. Nil disables it.
		RateLimiter middleware.RateLimiter
		Logger      *slog.Logger
	}

	// Server represents the HTTP API server.
	Server struct {
		httpServer *http.Server
		handler    http.Handler
		logger     *slog.Logger
		config     *ServerConfig
		startTime  time.Time
		deps       Dependencies
	}

	identityResolver struct{}
)

func (identityResolver) CanonicalTeam(team string) string { return team }

// NewServer creates a server with its routes and middleware stack.
//
// Configuration (what) is kept apart from dependencies (how): cfg holds only
// addresses, limits and timeouts.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Resolver == nil {
		deps.Resolver = identityResolver{}
	}

	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}

	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}

	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaultRetryAfter
	}

	server := &Server{
		logger: logger,
		config: cfg,
		deps:   deps,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if deps.APIKeyStore != nil { // pragma: allowlist secret
		logger.Info("API key authentication enabled for writes")
	} else {
		logger.Warn("APIKeyStore not configured - write authentication disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	var observer middleware.RequestObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	// Middleware executes in the order listed:
	//   1. CorrelationID - every response carries one
	//   2. Recovery - catches panics in everything below
	//   3. Auth - identifies the client of a write (optional)
	//   4. RateLimit - rejects before any store access (optional)
	//   5. RequestLogger - logs and measures admitted requests
	//   6. CORS
	server.handler = middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(deps.APIKeyStore, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger, observer),
		middleware.WithCORS(&cfg.CORS),
	)

	server.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           server.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return server
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting pitchlog API server",
			slog.String("address", s.config.Address()),
			slog.String("version", Version),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal", slog.String("cause", context.Cause(ctx).Error()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// InMemoryRateLimiter runs a cleanup goroutine.
	if limiter, ok := s.deps.RateLimiter.(interface{ Close() }); ok {
		limiter.Close()
		s.logger.Info("Rate limiter closed")
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
