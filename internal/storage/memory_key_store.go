package storage

import (
	"context"
	"sync"
)

var _ APIKeyStore = (*InMemoryKeyStore)(nil)

// InMemoryKeyStore is a thread-safe API key store, loaded from .pitchlog.yaml at startup.
type InMemoryKeyStore struct {
	keys  map[string]*APIKey
	mutex sync.RWMutex
}

// NewInMemoryKeyStore creates a store holding keys. Later duplicates of an ID are ignored.
func NewInMemoryKeyStore(keys ...*APIKey) *InMemoryKeyStore {
	s := &InMemoryKeyStore{keys: make(map[string]*APIKey, len(keys))}

	for _, key := range keys {
		_ = s.Add(key)
	}

	return s
}

// FindByID returns a copy of the key with id.
func (s *InMemoryKeyStore) FindByID(_ context.Context, id string) (*APIKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, false
	}

	keyCopy := *key

	return &keyCopy, true
}

// Add stores a copy of key.
func (s *InMemoryKeyStore) Add(key *APIKey) error {
	if key == nil {
		return ErrKeyNil
	}

	if !keyIDPattern.MatchString(key.ID) {
		return ErrInvalidKeyID
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keys[key.ID]; exists {
		return ErrKeyAlreadyExists
	}

	keyCopy := *key
	s.keys[key.ID] = &keyCopy

	return nil
}

// Len returns the number of stored keys.
func (s *InMemoryKeyStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.keys)
}
