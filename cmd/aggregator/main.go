// Package main runs the team statistics aggregator.
//
// It consumes match change notifications from Kafka and folds the goals of each
// match into the cumulative statistics of its team in PostgreSQL. Several
// replicas may share one consumer group; the conditional writes of the team
// store keep the fold exact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pitchlog-io/pitchlog/internal/aggregation"
	"github.com/pitchlog-io/pitchlog/internal/aliasing"
	"github.com/pitchlog-io/pitchlog/internal/changes"
	"github.com/pitchlog-io/pitchlog/internal/config"
	"github.com/pitchlog-io/pitchlog/internal/ingestion"
	"github.com/pitchlog-io/pitchlog/internal/metrics"
	"github.com/pitchlog-io/pitchlog/internal/storage"
)

const (
	name                   = "pitchlog-aggregator"
	defaultMetricsPort     = 9091
	metricsReadTimeout     = 5 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

var errPostgresRequired = errors.New("the aggregator requires PITCHLOG_STORAGE=postgres")

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s (%s)\n", name, Version, GitCommit)
		os.Exit(0)
	}

	_ = godotenv.Load()

	logger := config.NewLogger(config.GetEnvLogLevel("PITCHLOG_LOG_LEVEL", slog.LevelInfo))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("Aggregator failed", slog.String("error", err.Error()))
		os.Exit(1) //nolint: gocritic
	}

	logger.Info("Aggregator stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	logger.Info("Starting team statistics aggregator",
		slog.String("service", name),
		slog.String("version", Version),
		slog.String("commit", GitCommit),
	)

	fileConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", aliasing.DefaultConfigPath, err)
	}

	storageConfig := storage.LoadConfig()
	if storageConfig.Backend != storage.BackendPostgres {
		return fmt.Errorf("%w, got %q", errPostgresRequired, storageConfig.Backend)
	}

	conn, err := storage.NewConnection(storageConfig)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	matches, err := storage.NewMatchStore(conn, logger)
	if err != nil {
		return err
	}

	teams, err := storage.NewTeamStore(conn, logger)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()

	aggregator := aggregation.NewAggregator(teams, ingestion.LoadServiceConfig(),
		aggregation.WithMatchReader(matches),
		aggregation.WithResolver(aliasing.NewResolver(fileConfig)),
		aggregation.WithLogger(logger),
		aggregation.WithObserver(recorder),
	)

	kafkaConfig := changes.LoadKafkaConfig()

	consumer, err := changes.NewKafkaConsumer(kafkaConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close kafka consumer", slog.String("error", err.Error()))
		}
	}()

	logger.Info("Consuming match changes",
		slog.Any("brokers", kafkaConfig.Brokers),
		slog.String("topic", kafkaConfig.Topic),
		slog.String("group_id", kafkaConfig.GroupID),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return consumer.Run(ctx, aggregator.Handle) })
	group.Go(func() error { return serveMetrics(ctx, recorder, logger) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// serveMetrics exposes /metrics until ctx is done.
func serveMetrics(ctx context.Context, recorder *metrics.Recorder, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", recorder.Handler())

	addr := net.JoinHostPort(
		config.GetEnvStr("PITCHLOG_METRICS_HOST", "0.0.0.0"),
		strconv.Itoa(config.GetEnvInt("PITCHLOG_METRICS_PORT", defaultMetricsPort)),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("Serving aggregator metrics", slog.String("address", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	}
}
