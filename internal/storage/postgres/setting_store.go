package postgres

import (
	"context"
	"fmt"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// SettingStore is a PostgreSQL implementation of storage.SettingStore.
type SettingStore struct {
	pool *Pool
}

// NewSettingStore creates a new PostgreSQL setting store.
func NewSettingStore(pool *Pool) *SettingStore {
	return &SettingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingStore = (*SettingStore)(nil)

// Get returns the value for a key. Returns ErrNotFound if unset.
func (s *SettingStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// Set saves the value for a key.
func (s *SettingStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
