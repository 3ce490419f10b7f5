package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// RateWindowStore is an in-memory implementation of storage.RateWindowStore.
type RateWindowStore struct {
	mu      sync.RWMutex
	entries []storage.RateEntry
}

// NewRateWindowStore creates a new in-memory rate window store.
func NewRateWindowStore() *RateWindowStore {
	return &RateWindowStore{}
}

// Compile-time interface check.
var _ storage.RateWindowStore = (*RateWindowStore)(nil)

// Add appends one publish attempt.
func (s *RateWindowStore) Add(_ context.Context, e *storage.RateEntry) error {
	if e == nil || e.PublishedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *e)
	return nil
}

// CountSince returns the number of entries with published_at >= since.
func (s *RateWindowStore) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if !e.PublishedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// OldestSince returns the earliest published_at >= since.
func (s *RateWindowStore) OldestSince(_ context.Context, since time.Time) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	for _, e := range s.entries {
		if e.PublishedAt.Before(since) {
			continue
		}
		if oldest.IsZero() || e.PublishedAt.Before(oldest) {
			oldest = e.PublishedAt
		}
	}
	if oldest.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return oldest, nil
}
