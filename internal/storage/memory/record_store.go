package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// RecordStore is an in-memory implementation of storage.RecordStore.
// A single mutex covers both indexes, so the uniqueness check and the
// insert are atomic with respect to concurrent callers, matching the
// guarantee the postgres constraint gives.
type RecordStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Record
	byKey map[dedupKey]string // (category, natural_key) -> id
}

type dedupKey struct {
	category   domain.Category
	naturalKey string
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		byID:  make(map[string]*domain.Record),
		byKey: make(map[dedupKey]string),
	}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if (category, natural_key) exists.
func (s *RecordStore) Insert(_ context.Context, r *domain.Record) error {
	if r == nil || r.ID == "" || r.NaturalKey == "" || !r.Category.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey{r.Category, r.NaturalKey}
	if _, exists := s.byKey[key]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byID[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recordCopy := cloneRecord(r)
	s.byID[r.ID] = recordCopy
	s.byKey[key] = r.ID
	return nil
}

// GetByID retrieves a record by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetByID(_ context.Context, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Has reports whether a record with (category, naturalKey) exists.
func (s *RecordStore) Has(_ context.Context, category domain.Category, naturalKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.byKey[dedupKey{category, naturalKey}]
	return exists, nil
}

// SetStatus transitions a record between statuses with a current-status check.
func (s *RecordStore) SetStatus(_ context.Context, id string, from, to domain.Status, publishRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}
	if r.Status != from {
		return storage.ErrStatusConflict
	}

	r.Status = to
	if to == domain.StatusPosted {
		r.PublishRef = publishRef
	}
	return nil
}

// ListRecent retrieves up to limit records of a category, newest occurred_at first.
func (s *RecordStore) ListRecent(_ context.Context, category domain.Category, limit int, status *domain.Status) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Record
	for _, r := range s.byID {
		if r.Category != category {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		result = append(result, cloneRecord(r))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus returns record counts grouped by category and status.
func (s *RecordStore) CountByStatus(_ context.Context) ([]storage.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type cell struct {
		category domain.Category
		status   domain.Status
	}
	counts := make(map[cell]int)
	for _, r := range s.byID {
		counts[cell{r.Category, r.Status}]++
	}

	var result []storage.StatusCount
	for c, n := range counts {
		result = append(result, storage.StatusCount{Category: c.category, Status: c.status, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Status < result[j].Status
	})
	return result, nil
}

func cloneRecord(r *domain.Record) *domain.Record {
	recordCopy := *r
	if r.Enrichment != nil {
		enrichmentCopy := *r.Enrichment
		recordCopy.Enrichment = &enrichmentCopy
	}
	return &recordCopy
}
