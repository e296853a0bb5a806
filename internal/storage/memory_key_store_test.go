package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryKeyStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	store := NewInMemoryKeyStore(
		&APIKey{ID: "scorer-1", Name: "first", Active: true},
		&APIKey{ID: "scorer-1", Name: "duplicate", Active: true},
		nil,
	)

	assert.Equal(t, 1, store.Len())

	key, ok := store.FindByID(ctx, "scorer-1")
	require.True(t, ok)
	assert.Equal(t, "first", key.Name)

	// Returned keys are copies.
	key.Active = false

	again, ok := store.FindByID(ctx, "scorer-1")
	require.True(t, ok)
	assert.True(t, again.Active)

	_, ok = store.FindByID(ctx, "missing")
	assert.False(t, ok)

	assert.ErrorIs(t, store.Add(nil), ErrKeyNil)
	assert.ErrorIs(t, store.Add(&APIKey{ID: "scorer-1"}), ErrKeyAlreadyExists)
	assert.ErrorIs(t, store.Add(&APIKey{ID: "has space"}), ErrInvalidKeyID)
}

func TestInMemoryKeyStore_ConcurrentAccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryKeyStore()
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_ = store.Add(&APIKey{ID: fmt.Sprintf("key-%d", i), Active: true})
		}()

		go func() {
			defer wg.Done()

			_, _ = store.FindByID(ctx, fmt.Sprintf("key-%d", i))
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, store.Len())
}
