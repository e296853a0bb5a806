// Package main runs the pitchlog API service.
//
// The process serves the HTTP ingestion and query endpoints and relays the
// match change outbox. With PITCHLOG_STORAGE=postgres changes go to Kafka and
// cmd/aggregator folds them; with PITCHLOG_STORAGE=memory the aggregator runs
// in this process behind an in-memory bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/aliasing"
	"github.com/pitchlog-io/pitchlog/internal/api"
	"github.com/pitchlog-io/pitchlog/internal/api/middleware"
	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/config"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
	"github.com/pitchlog-io/pitchlog/internal/metrics"
	"github.com/pitchlog-io/pitchlog/internal/storage"
)

const name = "pitchlog"

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
)

type (
	// backend bundles the stores of one storage backend.
	backend struct {
		matches interface {
			ingestion.MatchStore
			ingestion.MatchReader
			changes.Outbox
			api.HealthChecker
		}
		teams interface {
			aggregation.TeamStore
			aggregation.TeamReader
		}
		close func() error
	}
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	generateKey := flag.String("generate-key", "", "generate an API key for the given key id and print its config entry")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s (%s)\n", name, Version, GitCommit)
		os.Exit(0)
	}

	if *generateKey != "" {
		if err := printAPIKey(*generateKey); err != nil {
			log.Printf("failed to generate API key: %v", err)
			os.Exit(1)
		}

		os.Exit(0)
	}

	_ = godotenv.Load()

	serverConfig := api.LoadServerConfig()
	logger := config.NewLogger(serverConfig.LogLevel)
	slog.SetDefault(logger)

	api.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, serverConfig, logger); err != nil {
		logger.Error("pitchlog service failed", slog.String("error", err.Error()))
		os.Exit(1) //nolint: gocritic
	}

	logger.Info("pitchlog service stopped")
}

func run(ctx context.Context, serverConfig *api.ServerConfig, logger *slog.Logger) error {
	logger.Info("Starting pitchlog service",
		slog.String("service", name),
		slog.String("version", Version),
		slog.String("commit", GitCommit),
	)

	fileConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", aliasing.DefaultConfigPath, err)
	}

	resolver := aliasing.NewResolver(fileConfig)
	recorder := metrics.NewRecorder()
	serviceConfig := ingestion.LoadServiceConfig()

	storageConfig := storage.LoadConfig()

	stores, err := openBackend(storageConfig, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := stores.close(); err != nil {
			logger.Warn("Failed to close storage", slog.String("error", err.Error()))
		}
	}()

	service := ingestion.NewService(stores.matches, serviceConfig,
		ingestion.WithLogger(logger),
		ingestion.WithObserver(recorder),
	)

	group, ctx := errgroup.WithContext(ctx)

	publisher, closePublisher, err := startChangeStream(
		ctx, group, storageConfig.Backend, stores, resolver, recorder, serviceConfig, logger,
	)
	if err != nil {
		return err
	}

	relay := changes.NewRelay(stores.matches, publisher, changes.LoadRelayConfig(), logger, recorder)
	group.Go(func() error { return relay.Run(ctx) })

	var apiKeyStore storage.APIKeyStore

	if serverConfig.AuthEnabled {
		keyStore := storage.NewInMemoryKeyStore(storage.APIKeysFromConfig(fileConfig)...)
		if keyStore.Len() == 0 {
			logger.Warn("Authentication enabled but no API keys configured - every write will be rejected")
		}

		apiKeyStore = keyStore

		logger.Info("API key authentication enabled", slog.Int("keys", keyStore.Len()))
	} else {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set PITCHLOG_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	rateLimitConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimitConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateLimitConfig.GlobalRPS),
		slog.Int("client_rps", rateLimitConfig.ClientRPS),
		slog.Int("unauth_rps", rateLimitConfig.UnAuthRPS),
	)

	server := api.NewServer(serverConfig, api.Dependencies{
		Ingester:    service,
		Matches:     stores.matches,
		Teams:       stores.teams,
		Resolver:    resolver,
		Health:      stores.matches,
		Metrics:     recorder,
		APIKeyStore: apiKeyStore,
		RateLimiter: rateLimiter,
		Logger:      logger,
	})

	group.Go(func() error { return server.Start(ctx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if closePublisher == nil {
		return nil
	}

	// Publish whatever the last requests wrote before the process exits.
	flushCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if published, err := relay.Flush(flushCtx); err != nil {
		logger.Warn("Final outbox flush failed", slog.String("error", err.Error()))
	} else if published > 0 {
		logger.Info("Final outbox flush", slog.Int("published", published))
	}

	return closePublisher()
}

func openBackend(cfg *storage.Config, logger *slog.Logger) (*backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	if cfg.Backend == storage.BackendMemory {
		logger.Warn("Using in-memory storage - data is lost on restart")

		return &backend{
			matches: storage.NewInMemoryMatchStore(),
			teams:   storage.NewInMemoryTeamStore(),
			close:   func() error { return nil },
		}, nil
	}

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		return nil, err
	}

	matches, err := storage.NewMatchStore(conn, logger)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	teams, err := storage.NewTeamStore(conn, logger)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	logger.Info("PostgreSQL storage initialized",
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", cfg.MaxOpenConns),
		slog.Int("database_max_idle_conns", cfg.MaxIdleConns),
	)

	return &backend{matches: matches, teams: teams, close: conn.Close}, nil
}

// startChangeStream returns the publisher the relay writes to and, for Kafka,
// the func that closes it. For the memory backend it also starts the
// in-process aggregator on group.
func startChangeStream(
	ctx context.Context,
	group *errgroup.Group,
	kind storage.Backend,
	stores *backend,
	resolver aggregation.TeamResolver,
	recorder *metrics.Recorder,
	serviceConfig ingestion.ServiceConfig,
	logger *slog.Logger,
) (changes.Publisher, func() error, error) {
	if kind == storage.BackendMemory {
		bus := changes.NewMemoryBus(0, logger)
		aggregator := aggregation.NewAggregator(stores.teams, serviceConfig,
			aggregation.WithMatchReader(stores.matches),
			aggregation.WithResolver(resolver),
			aggregation.WithLogger(logger),
			aggregation.WithObserver(recorder),
		)

		group.Go(func() error { return bus.Run(ctx, aggregator.Handle) })

		logger.Info("In-process team statistics aggregator started")

		return bus, nil, nil
	}

	kafkaConfig := changes.LoadKafkaConfig()

	publisher, err := changes.NewKafkaPublisher(kafkaConfig, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	logger.Info("Publishing match changes to Kafka",
		slog.Any("brokers", kafkaConfig.Brokers),
		slog.String("topic", kafkaConfig.Topic),
	)

	return publisher, publisher.Close, nil
}

func printAPIKey(id string) error {
	plaintext, hash, err := storage.GenerateAPIKey(id)
	if err != nil {
		return err
	}

	fmt.Printf("API key (give to the client, shown once): %s\n\n", plaintext)
	fmt.Printf("Add to %s:\n\napi_keys:\n  - id: %s\n    name: %s\n    hash: %q\n", aliasing.DefaultConfigPath, id, id, hash)

	return nil
}
