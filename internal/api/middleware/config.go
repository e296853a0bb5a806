package middleware

import (
	"time"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

// Config holds rate limiter configuration.
//
// Limits are requests per second for the global bucket, each authenticated
// client's bucket and the shared unauthenticated bucket. Burst fields left at 0
// are computed as 2 × rate.
type Config struct {
	GlobalRPS int // Default: 200
	ClientRPS int // Default: 50
	UnAuthRPS int // Default: 100

	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 1000
}

// LoadConfig loads rate limiter config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("PITCHLOG_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("PITCHLOG_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("PITCHLOG_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("PITCHLOG_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("PITCHLOG_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("PITCHLOG_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"PITCHLOG_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("PITCHLOG_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("PITCHLOG_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
