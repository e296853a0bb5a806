package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlog-io/pitchlog/internal/aliasing"
)

func TestGenerateAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key, hash, err := GenerateAPIKey("scorer-1")
	require.NoError(t, err)

	id, secret, err := ParseAPIKey(key)
	require.NoError(t, err)

	assert.Equal(t, "scorer-1", id)
	assert.Len(t, secret, 2*secretBytes)
	assert.True(t, CompareAPIKeyHash(hash, secret))

	other, _, err := GenerateAPIKey("scorer-1")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, _, err = GenerateAPIKey("bad id!")
	assert.ErrorIs(t, err, ErrInvalidKeyID)
}

func TestParseAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name       string
		input      string
		wantID     string
		wantSecret string
		wantErr    error
	}{
		{name: "plain", input: "scorer-1.abc123", wantID: "scorer-1", wantSecret: "abc123"},
		{name: "bearer", input: "Bearer scorer-1.abc123", wantID: "scorer-1", wantSecret: "abc123"},
		{name: "secret with dots", input: "k.a.b", wantID: "k", wantSecret: "a.b"},
		{name: "empty", input: "", wantErr: ErrKeyStringEmpty},
		{name: "bearer only", input: "Bearer ", wantErr: ErrKeyStringEmpty},
		{name: "no separator", input: "scorer-1abc", wantErr: ErrInvalidKeyFormat},
		{name: "empty secret", input: "scorer-1.", wantErr: ErrInvalidKeyFormat},
		{name: "empty id", input: ".abc", wantErr: ErrInvalidKeyID},
		{name: "bad id", input: "a b.abc", wantErr: ErrInvalidKeyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseAPIKey(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantSecret, secret)
		})
	}
}

func TestAPIKeyVerify(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hash, err := HashAPIKey(testSecret)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	active := &APIKey{ID: "k", Hash: hash, Active: true}
	assert.True(t, active.Verify(testSecret, now))
	assert.False(t, active.Verify("wrong", now))

	inactive := &APIKey{ID: "k", Hash: hash}
	assert.False(t, inactive.Verify(testSecret, now))

	expired := &APIKey{ID: "k", Hash: hash, Active: true, ExpiresAt: &past}
	assert.True(t, expired.Expired(now))
	assert.False(t, expired.Verify(testSecret, now))

	notYet := &APIKey{ID: "k", Hash: hash, Active: true, ExpiresAt: &future}
	assert.False(t, notYet.Expired(now))
	assert.True(t, notYet.Verify(testSecret, now))
}

func TestAPIKeysFromConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	keys := APIKeysFromConfig(&aliasing.Config{
		APIKeys: []aliasing.APIKeyEntry{
			{ID: "scorer-1", Name: "Stadium scorer", Hash: "h1"},
			{ID: "scorer-2", Hash: "h2", Disabled: true, ExpiresAt: &expiry},
		},
	})

	require.Len(t, keys, 2)
	assert.Equal(t, &APIKey{ID: "scorer-1", Name: "Stadium scorer", Hash: "h1", Active: true}, keys[0])
	assert.False(t, keys[1].Active)
	assert.Equal(t, &expiry, keys[1].ExpiresAt)

	assert.Nil(t, APIKeysFromConfig(nil))
}

func TestMaskKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "scorer-1."+strings.Repeat("*", 8)+"wxyz", MaskKey("scorer-1.abcdefghwxyz"))
	assert.Equal(t, "k.***", MaskKey("k.abc"))
	assert.Equal(t, "******", MaskKey("nodots"))
	assert.Empty(t, MaskKey(""))
}
