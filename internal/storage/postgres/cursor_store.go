package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// One row per source id, upserted at the end of each poll.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the watermark for a source.
func (s *CursorStore) Get(ctx context.Context, sourceID string) (time.Time, error) {
	if sourceID == "" {
		return time.Time{}, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT watermark FROM cursors WHERE source_id = $1
	`, sourceID)

	var watermark time.Time
	if err := row.Scan(&watermark); err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get cursor: %w", err)
	}
	return watermark, nil
}

// Set saves the watermark for a source.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CursorStore) Set(ctx context.Context, sourceID string, watermark time.Time) error {
	if sourceID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cursors (source_id, watermark, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_id) DO UPDATE
		SET watermark = EXCLUDED.watermark,
		    updated_at = NOW()
	`, sourceID, watermark)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
