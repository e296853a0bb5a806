package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost 10 is roughly 60ms per hash.
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashAPIKey returns the bcrypt hash of an API key secret, the form kept in
// .pitchlog.yaml. Secrets longer than bcrypt's 72-byte limit are pre-hashed with SHA-256.
func HashAPIKey(secret string) (string, error) {
	if secret == "" {
		return "", ErrKeyStringEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash reports whether secret matches hash. Empty inputs and
// malformed hashes never match.
func CompareAPIKeyHash(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(secret)) == nil
}

func bcryptInput(secret string) []byte {
	if len(secret) > bcryptLimit {
		sum := sha256.Sum256([]byte(secret))

		return sum[:]
	}

	return []byte(secret)
}
