// Package storage provides the PostgreSQL and in-memory implementations of the
// match aggregate store, the team statistics store and the change outbox, plus
// the API key store used by the ingestion endpoint.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
)

// Backend selects the store implementation.
type Backend string

const (
	// BackendPostgres stores aggregates in PostgreSQL.
	BackendPostgres Backend = "postgres"

	// BackendMemory keeps aggregates in process memory. State is lost on exit.
	BackendMemory Backend = "memory"
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

	// ErrUnknownBackend is returned for a PITCHLOG_STORAGE value other than postgres or memory.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Backend         Backend
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// LoadConfig loads storage configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Backend:         Backend(strings.ToLower(config.GetEnvStr("PITCHLOG_STORAGE", string(BackendPostgres)))),
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		ConnectTimeout:  config.GetEnvDuration("DATABASE_CONNECT_TIMEOUT", defaultConnectTimeout),
	}
}

// NewConfig returns a PostgreSQL config for databaseURL with default pool settings.
func NewConfig(databaseURL string) *Config {
	return &Config{
		Backend:         BackendPostgres,
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		ConnectTimeout:  defaultConnectTimeout,
	}
}

// Validate checks the configuration. The database URL is only required for
// the postgres backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendPostgres, "":
		if strings.TrimSpace(c.databaseURL) == "" {
			return ErrDatabaseURLEmpty
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
}

// MaskDatabaseURL returns the database URL with its password redacted, safe for logging.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	u, err := url.Parse(c.databaseURL)
	if err != nil || u.User == nil {
		return c.databaseURL
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return c.databaseURL
	}

	return u.Redacted()
}
