package memory

import (
	"context"
	"sync"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// SettingStore is an in-memory implementation of storage.SettingStore.
type SettingStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewSettingStore creates a new in-memory setting store.
func NewSettingStore() *SettingStore {
	return &SettingStore{data: make(map[string]string)}
}

// Compile-time interface check.
var _ storage.SettingStore = (*SettingStore)(nil)

// Get returns the value for a key. Returns ErrNotFound if unset.
func (s *SettingStore) Get(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	if !exists {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set saves the value for a key.
func (s *SettingStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}
