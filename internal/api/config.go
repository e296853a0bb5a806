package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

const (
	defaultPort       = 8080
	maxPort           = 65535
	defaultHost       = "0.0.0.0"
	defaultCORSMaxAge = 86400
	defaultTimeout    = 30 * time.Second

	// Kept below the write timeout.
	defaultQueryTimeout = 5 * time.Second
	defaultRetryAfter   = time.Second
	defaultLogLevel     = slog.LevelInfo

	// Bodies carry a single event.
	defaultMaxRequestSize int64 = 64 * 1024
	maxRequestSizeLimit   int64 = 1024 * 1024
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidQueryTimeout indicates the query timeout is not positive or
	// does not fit inside the write timeout.
	ErrInvalidQueryTimeout = errors.New("query timeout must be positive and shorter than the write timeout")

	// ErrInvalidMaxRequestSize indicates the event body limit is outside 1 byte to 1 MiB.
	ErrInvalidMaxRequestSize = errors.New("max request size must be between 1 byte and 1 MiB")

	// ErrInvalidRetryAfter indicates a negative Retry-After hint.
	ErrInvalidRetryAfter = errors.New("retry-after cannot be negative")
)

type (
	// ServerConfig holds HTTP server configuration.
	// Pure configuration only - no runtime dependencies.
	ServerConfig struct {
		Port            int
		Host            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		// QueryTimeout bounds each store read of the match and team endpoints.
		QueryTimeout time.Duration
		// MaxRequestSize caps the body of POST /api/v1/events.
		MaxRequestSize int64
		// RetryAfter is sent with 409, 503 and 504 problems.
		RetryAfter time.Duration
		// AuthEnabled requires an API key on writes. Reads stay public.
		AuthEnabled bool
		LogLevel    slog.Level
		CORS        CORSConfig
	}

	// CORSConfig holds CORS configuration options. It satisfies middleware.CORSConfig.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig reads PITCHLOG_* environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("PITCHLOG_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("PITCHLOG_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("PITCHLOG_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("PITCHLOG_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("PITCHLOG_SERVER_SHUTDOWN_TIMEOUT", defaultTimeout),
		QueryTimeout:    config.GetEnvDuration("PITCHLOG_QUERY_TIMEOUT", defaultQueryTimeout),
		MaxRequestSize:  config.GetEnvInt64("PITCHLOG_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		RetryAfter:      config.GetEnvDuration("PITCHLOG_RETRY_AFTER", defaultRetryAfter),
		AuthEnabled:     config.GetEnvBool("PITCHLOG_AUTH_ENABLED", false),
		LogLevel:        config.GetEnvLogLevel("PITCHLOG_LOG_LEVEL", defaultLogLevel),
		CORS: CORSConfig{
			AllowedOrigins: config.ParseCommaSeparatedList(config.GetEnvStr("PITCHLOG_CORS_ALLOWED_ORIGINS", "*")),
			AllowedMethods: config.ParseCommaSeparatedList(config.GetEnvStr("PITCHLOG_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: config.ParseCommaSeparatedList(config.GetEnvStr(
				"PITCHLOG_CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Correlation-ID,X-Api-Key",
			)),
			MaxAge: config.GetEnvInt("PITCHLOG_CORS_MAX_AGE", defaultCORSMaxAge),
		},
	}
}

// Address returns the listen address in host:port form.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// retryAfterSeconds renders RetryAfter for the Retry-After header, rounded up
// to whole seconds with a floor of one.
func (c *ServerConfig) retryAfterSeconds() string {
	seconds := int((c.RetryAfter + time.Second - 1) / time.Second)

	return strconv.Itoa(max(seconds, 1))
}

// Validate reports every invalid setting at once.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > maxPort {
		errs = append(errs, fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort))
	}

	if c.Host == "" {
		errs = append(errs, ErrEmptyHost)
	}

	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout))
	}

	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout))
	}

	if c.QueryTimeout <= 0 || (c.WriteTimeout > 0 && c.QueryTimeout >= c.WriteTimeout) {
		errs = append(errs, fmt.Errorf("%w: query %v, write %v", ErrInvalidQueryTimeout, c.QueryTimeout, c.WriteTimeout))
	}

	if c.MaxRequestSize <= 0 || c.MaxRequestSize > maxRequestSizeLimit {
		errs = append(errs, fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize))
	}

	if c.RetryAfter < 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidRetryAfter, c.RetryAfter))
	}

	return errors.Join(errs...)
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c *CORSConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// GetAllowedMethods returns the allowed methods for CORS.
func (c *CORSConfig) GetAllowedMethods() []string {
	return c.AllowedMethods
}

// GetAllowedHeaders returns the allowed headers for CORS.
func (c *CORSConfig) GetAllowedHeaders() []string {
	return c.AllowedHeaders
}

// GetMaxAge returns the max age for CORS preflight cache.
func (c *CORSConfig) GetMaxAge() int {
	return c.MaxAge
}
