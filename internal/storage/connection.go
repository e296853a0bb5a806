package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/pitchlog-io/pitchlog/internal/ingestion"
)

// queryCanceledCode is the PostgreSQL query_canceled condition.
const queryCanceledCode pq.ErrorCode = "57014"

// ErrNoDatabaseConnection is returned when a PostgreSQL store is built without a connection.
var ErrNoDatabaseConnection = errors.New("database connection is required")

// Connection is a pooled PostgreSQL handle shared by the PostgreSQL stores.
type Connection struct {
	*sql.DB
}

// NewConnection opens a connection pool and verifies it with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.MaskDatabaseURL(), err)
	}

	return &Connection{DB: db}, nil
}

// HealthCheck pings the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	if err := c.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// isDatabaseConnectionError reports whether err means the database could not be reached.
func isDatabaseConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Class 08 is connection exception; 57P01..57P03 are shutdown and cannot-connect-now.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)

		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

// isQueryCanceled reports whether the server canceled the statement, either
// through a client cancel request or statement_timeout.
func isQueryCanceled(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == queryCanceledCode
}

// classify maps a database error onto the domain taxonomy. Deadline and
// connection failures become ingestion.ErrTimeout and ingestion.ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	// lib/pq cancels the running statement when the context ends; the server
	// then answers with query_canceled instead of the context error.
	if isQueryCanceled(err) {
		return fmt.Errorf("%w: %s: %w", ingestion.ErrTimeout, op, err)
	}

	// context.DeadlineExceeded satisfies net.Error, so it is checked first.
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) && isDatabaseConnectionError(err) {
		return fmt.Errorf("%w: %s: %w", ingestion.ErrStoreUnavailable, op, err)
	}

	return ingestion.ClassifyStoreError(fmt.Errorf("%s: %w", op, err))
}
