package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu   sync.RWMutex
	data map[string]time.Time
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{data: make(map[string]time.Time)}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the watermark for a source. Returns ErrNotFound if unset.
func (s *CursorStore) Get(_ context.Context, sourceID string) (time.Time, error) {
	if sourceID == "" {
		return time.Time{}, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[sourceID]
	if !exists {
		return time.Time{}, storage.ErrNotFound
	}
	return w, nil
}

// Set saves the watermark for a source.
func (s *CursorStore) Set(_ context.Context, sourceID string, watermark time.Time) error {
	if sourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[sourceID] = watermark
	return nil
}
