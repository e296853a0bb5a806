// Package middleware provides HTTP middleware components for the pitchlog API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pitchlog-io/pitchlog/internal/storage"
)

type (
	// AuthError represents an authentication error with a specific type.
	AuthError struct {
		Type    error
		Message string
	}
)

// Authentication error types for granular error handling.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned for a malformed key, an unknown key ID or a wrong secret.
	// Generic error prevents enumeration attacks.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrAPIKeyExpired is returned when the API key has expired.
	ErrAPIKeyExpired = errors.New("API key expired")

	// ErrAPIKeyInactive is returned when the API key is disabled in configuration.
	ErrAPIKeyInactive = errors.New("API key inactive")
)

// dummyHash is compared against when no stored hash exists, so an unknown key ID
// costs the same bcrypt work as a known one.
var dummyHash = sync.OnceValue(func() []byte { //nolint: gochecknoglobals
	hash, err := bcrypt.GenerateFromPassword([]byte("pitchlog-dummy-secret"), bcrypt.DefaultCost)
	if err != nil {
		return nil
	}

	return hash
})

// extractAPIKey extracts the API key from request headers.
// It checks the X-Api-Key header first (primary), then falls back to
// Authorization: Bearer header (secondary).
//
// Returns (key, true) if found and valid, ("", false) otherwise.
// Keys containing newlines are rejected and surrounding whitespace is trimmed.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return validateAPIKey(apiKey)
	}

	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return validateAPIKey(token)
	}

	return "", false
}

// validateAPIKey validates and cleans an API key value.
func validateAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling standard errors.Is() and errors.As() behavior.
func (e *AuthError) Unwrap() error {
	return e.Type
}

func performDummyBcryptComparison(secret string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(secret))
}

// authenticateRequest resolves a presented "<id>.<secret>" key to its stored record.
//
// Error handling:
//   - Invalid format, unknown ID or wrong secret → ErrInvalidAPIKey (generic)
//   - Disabled key → ErrAPIKeyInactive
//   - Expired key → ErrAPIKeyExpired
func authenticateRequest(
	ctx context.Context,
	store storage.APIKeyStore,
	apiKey string,
	now time.Time,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	invalid := &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}

	keyID, secret, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		performDummyBcryptComparison(apiKey)

		logger.Error("authentication failed: invalid key format",
			slog.String("error", err.Error()),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "format_validation"),
		)

		return nil, invalid
	}

	foundKey, exists := store.FindByID(ctx, keyID)
	if !exists {
		performDummyBcryptComparison(secret)

		logger.Error("authentication failed: key not found",
			slog.String("key_id", keyID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_not_found"),
		)

		return nil, invalid
	}

	if !foundKey.Active {
		logger.Error("authentication failed: key inactive",
			slog.String("key_id", foundKey.ID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_inactive"),
		)

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}
	}

	if foundKey.Expired(now) {
		logger.Error("authentication failed: key expired",
			slog.String("key_id", foundKey.ID),
			slog.Time("expired_at", *foundKey.ExpiresAt),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_expired"),
		)

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	if !foundKey.Verify(secret, now) {
		logger.Error("authentication failed: secret mismatch",
			slog.String("key_id", foundKey.ID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "secret_mismatch"),
		)

		return nil, invalid
	}

	return foundKey, nil
}

// requiresAuthentication reports whether r must carry an API key.
// Reads, preflights and health checks are public; writes are not.
func requiresAuthentication(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Authenticate creates an authentication middleware for write requests.
//
// The middleware extracts "<id>.<secret>" keys from X-Api-Key or
// Authorization: Bearer, checks them against store and enriches the request
// context with a ClientContext. Failures are answered with RFC 7807 errors.
func Authenticate(store storage.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresAuthentication(r) {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrMissingAPIKey,
					Message: "Missing API key",
				})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, apiKey, authStart, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			clientCtx := ClientContext{
				ClientID: authenticated.ID,
				Name:     authenticated.Name,
				AuthTime: time.Now(),
			}
			ctx := SetClientContext(r.Context(), clientCtx)

			logger.Debug("API key authenticated",
				slog.String("client_id", clientCtx.ClientID),
				slog.String("key", storage.MaskKey(apiKey)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes an RFC 7807 compliant error response for authentication failures.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	statusCode := http.StatusUnauthorized
	if errors.Is(err, ErrAPIKeyInactive) {
		statusCode = http.StatusForbidden
	}

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	detail := err.Error()
	if err := writeRFC7807Error(w, r, statusCode, detail, correlationID); err != nil {
		logger.Error("failed to write response with RFC 7807 error format",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)
	}
}

// writeRFC7807Error writes an RFC 7807 compliant error response without importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail,
	correlationID string,
) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	default:
		title = http.StatusText(statusCode)
	}

	problem := map[string]any{
		"type":           fmt.Sprintf("https://pitchlog.io/problems/%d", statusCode),
		"title":          title,
		"status":         statusCode,
		"detail":         detail,
		"instance":       r.URL.Path,
		"correlation_id": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
