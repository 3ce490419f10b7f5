package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// RateWindowStore is a PostgreSQL implementation of storage.RateWindowStore.
// One row per publish attempt; the limiter derives its state by scanning
// the trailing window, so the log and the count can never drift apart.
type RateWindowStore struct {
	pool *Pool
}

// NewRateWindowStore creates a new PostgreSQL rate window store.
func NewRateWindowStore(pool *Pool) *RateWindowStore {
	return &RateWindowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RateWindowStore = (*RateWindowStore)(nil)

// Add appends one publish attempt.
func (s *RateWindowStore) Add(ctx context.Context, e *storage.RateEntry) error {
	if e == nil || e.PublishedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	var recordID *string
	if e.RecordID != "" {
		recordID = &e.RecordID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rate_window (published_at, success, record_id)
		VALUES ($1, $2, $3)
	`, e.PublishedAt, e.Success, recordID)
	if err != nil {
		return fmt.Errorf("add rate window entry: %w", err)
	}
	return nil
}

// CountSince returns the number of entries with published_at >= since.
func (s *RateWindowStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rate_window WHERE published_at >= $1
	`, since)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate window entries: %w", err)
	}
	return count, nil
}

// OldestSince returns the earliest published_at >= since.
func (s *RateWindowStore) OldestSince(ctx context.Context, since time.Time) (time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT published_at FROM rate_window
		WHERE published_at >= $1
		ORDER BY published_at ASC
		LIMIT 1
	`, since)

	var oldest time.Time
	if err := row.Scan(&oldest); err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get oldest rate window entry: %w", err)
	}
	return oldest, nil
}
