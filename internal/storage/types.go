package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pitchlog-io/pitchlog/internal/aliasing"
)

const (
	secretBytes = 32
	visibleLen  = 4
)

var keyIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var (
	// ErrKeyAlreadyExists is returned when a key with the same ID is already stored.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrKeyStringEmpty is returned when no key was presented.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when a presented key is not <id>.<secret>.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyID is returned when a key ID has characters outside [a-zA-Z0-9_-].
	ErrInvalidKeyID = errors.New("invalid API key ID")
)

// APIKey is a stored API key. Only the bcrypt hash of the secret is kept.
//
// Clients present "<id>.<secret>"; the ID selects the key and the secret is
// compared against Hash.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Hash      string     `json:"-"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Active    bool       `json:"active"`
}

// APIKeyStore looks up API keys by ID.
type APIKeyStore interface {
	FindByID(ctx context.Context, id string) (*APIKey, bool)
}

// Expired reports whether the key is past its expiry at now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Verify reports whether secret matches the key. Inactive and expired keys never match.
func (k *APIKey) Verify(secret string, now time.Time) bool {
	if !k.Active || k.Expired(now) {
		return false
	}

	return CompareAPIKeyHash(k.Hash, secret)
}

// APIKeysFromConfig converts the api_keys section of .pitchlog.yaml.
func APIKeysFromConfig(cfg *aliasing.Config) []*APIKey {
	if cfg == nil {
		return nil
	}

	keys := make([]*APIKey, 0, len(cfg.APIKeys))

	for _, entry := range cfg.APIKeys {
		keys = append(keys, &APIKey{
			ID:        entry.ID,
			Name:      entry.Name,
			Hash:      entry.Hash,
			ExpiresAt: entry.ExpiresAt,
			Active:    !entry.Disabled,
		})
	}

	return keys
}

// GenerateAPIKey creates a key for id. It returns the plaintext "<id>.<secret>"
// to hand to the client and the bcrypt hash of the secret to configure.
func GenerateAPIKey(id string) (string, string, error) {
	if !keyIDPattern.MatchString(id) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKeyID, id)
	}

	random := make([]byte, secretBytes)
	if _, err := rand.Read(random); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret := hex.EncodeToString(random)

	hash, err := HashAPIKey(secret)
	if err != nil {
		return "", "", err
	}

	return id + "." + secret, hash, nil
}

// ParseAPIKey splits a presented key into ID and secret. A "Bearer " prefix is accepted.
func ParseAPIKey(keyString string) (string, string, error) {
	keyString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(keyString), "Bearer "))
	if keyString == "" {
		return "", "", ErrKeyStringEmpty
	}

	id, secret, found := strings.Cut(keyString, ".")
	if !found || secret == "" {
		return "", "", ErrInvalidKeyFormat
	}

	if !keyIDPattern.MatchString(id) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKeyID, id)
	}

	return id, secret, nil
}

// MaskKey masks a presented key for logging. The ID and the last four
// characters of the secret stay visible.
func MaskKey(key string) string {
	id, secret, found := strings.Cut(key, ".")
	if !found {
		return strings.Repeat("*", len(key))
	}

	if len(secret) <= visibleLen {
		return id + "." + strings.Repeat("*", len(secret))
	}

	return id + "." + strings.Repeat("*", len(secret)-visibleLen) + secret[len(secret)-visibleLen:]
}
