package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// RecordStore implements storage.RecordStore using PostgreSQL.
// The records table carries UNIQUE (category, natural_key); that
// constraint, not any pipeline logic, is what makes deduplication safe
// under concurrent adapters.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if (category, natural_key) exists.
func (s *RecordStore) Insert(ctx context.Context, r *domain.Record) error {
	if r == nil || r.ID == "" || r.NaturalKey == "" || !r.Category.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO records (
			id, category, natural_key, name, occurred_at, received_at, status,
			publish_ref, value, currency, marketplace,
			enr_display_name, enr_image_ref, enr_usd_value, enr_quoted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var enrName, enrImage *string
	var enrUSD *float64
	var enrQuotedAt *time.Time
	if r.Enrichment != nil {
		enrName = &r.Enrichment.DisplayName
		enrImage = &r.Enrichment.ImageRef
		enrUSD = &r.Enrichment.USDValue
		enrQuotedAt = &r.Enrichment.QuotedAt
	}

	_, err := s.pool.Exec(ctx, query,
		r.ID,
		string(r.Category),
		r.NaturalKey,
		r.Name,
		r.OccurredAt,
		r.ReceivedAt,
		string(r.Status),
		r.PublishRef,
		r.Value,
		string(r.Currency),
		r.Marketplace,
		enrName,
		enrImage,
		enrUSD,
		enrQuotedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	query := recordColumns + ` FROM records WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	r, err := scanRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	return r, nil
}

// Has reports whether a record with (category, naturalKey) exists.
func (s *RecordStore) Has(ctx context.Context, category domain.Category, naturalKey string) (bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM records WHERE category = $1 AND natural_key = $2)
	`, string(category), naturalKey)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check record existence: %w", err)
	}
	return exists, nil
}

// SetStatus transitions a record between statuses, atomically checking the
// current status in the UPDATE's WHERE clause.
func (s *RecordStore) SetStatus(ctx context.Context, id string, from, to domain.Status, publishRef string) error {
	query := `
		UPDATE records
		SET status = $1,
		    publish_ref = CASE WHEN $1 = 'posted' THEN $2 ELSE publish_ref END
		WHERE id = $3 AND status = $4
	`

	tag, err := s.pool.Exec(ctx, query, string(to), publishRef, id, string(from))
	if err != nil {
		return fmt.Errorf("set record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing id from a status mismatch.
		row := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM records WHERE id = $1)`, id)
		var exists bool
		if scanErr := row.Scan(&exists); scanErr != nil {
			return fmt.Errorf("check record after status miss: %w", scanErr)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrStatusConflict
	}
	return nil
}

// ListRecent retrieves up to limit records of a category, newest occurred_at first.
func (s *RecordStore) ListRecent(ctx context.Context, category domain.Category, limit int, status *domain.Status) ([]*domain.Record, error) {
	query := recordColumns + `
		FROM records
		WHERE category = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3
	`

	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}

	rows, err := s.pool.Query(ctx, query, string(category), statusArg, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByStatus returns record counts grouped by category and status.
func (s *RecordStore) CountByStatus(ctx context.Context) ([]storage.StatusCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, status, COUNT(*)
		FROM records
		GROUP BY category, status
		ORDER BY category, status
	`)
	if err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	defer rows.Close()

	var counts []storage.StatusCount
	for rows.Next() {
		var c storage.StatusCount
		var category, status string
		if err := rows.Scan(&category, &status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count row: %w", err)
		}
		c.Category = domain.Category(category)
		c.Status = domain.Status(status)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status count rows: %w", err)
	}
	return counts, nil
}

const recordColumns = `
	SELECT id, category, natural_key, name, occurred_at, received_at, status,
	       publish_ref, value, currency, marketplace,
	       enr_display_name, enr_image_ref, enr_usd_value, enr_quoted_at`

// scanRecord scans a single row into a Record.
func scanRecord(row pgx.Row) (*domain.Record, error) {
	var r domain.Record
	var category, status, currency string
	var enrName, enrImage *string
	var enrUSD *float64
	var enrQuotedAt *time.Time

	err := row.Scan(
		&r.ID,
		&category,
		&r.NaturalKey,
		&r.Name,
		&r.OccurredAt,
		&r.ReceivedAt,
		&status,
		&r.PublishRef,
		&r.Value,
		&currency,
		&r.Marketplace,
		&enrName,
		&enrImage,
		&enrUSD,
		&enrQuotedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Category = domain.Category(category)
	r.Status = domain.Status(status)
	r.Currency = domain.Currency(currency)
	if enrName != nil {
		r.Enrichment = &domain.Enrichment{DisplayName: *enrName}
		if enrImage != nil {
			r.Enrichment.ImageRef = *enrImage
		}
		if enrUSD != nil {
			r.Enrichment.USDValue = *enrUSD
		}
		if enrQuotedAt != nil {
			r.Enrichment.QuotedAt = *enrQuotedAt
		}
	}
	return &r, nil
}

// scanRecords scans multiple rows into a slice of Record.
func scanRecords(rows pgx.Rows) ([]*domain.Record, error) {
	var records []*domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}
