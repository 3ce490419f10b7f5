package storage

import (
	"context"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// RecordStore provides access to ingested event records.
// (category, natural_key) carries a store-level uniqueness constraint;
// Insert under a racing duplicate must surface ErrDuplicateKey so the
// deduplicator can classify the loser without a read-then-write race.
type RecordStore interface {
	// Insert adds a new record in status unposted.
	// Returns ErrDuplicateKey if (category, natural_key) exists.
	Insert(ctx context.Context, r *domain.Record) error

	// GetByID retrieves a record by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Record, error)

	// Has reports whether a record with (category, naturalKey) exists.
	// Advisory fast path only; Insert's constraint is the authority.
	Has(ctx context.Context, category domain.Category, naturalKey string) (bool, error)

	// SetStatus transitions a record from one status to another,
	// atomically checking the current status. publishRef is stored on
	// the unposted→posted transition and ignored otherwise.
	// Returns ErrNotFound if the id is unknown, ErrStatusConflict if
	// the current status is not `from`.
	SetStatus(ctx context.Context, id string, from, to domain.Status, publishRef string) error

	// ListRecent retrieves up to limit records of a category, newest
	// occurred_at first. A nil status returns records in any status.
	ListRecent(ctx context.Context, category domain.Category, limit int, status *domain.Status) ([]*domain.Record, error)

	// CountByStatus returns record counts grouped by category and status.
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

// StatusCount is one cell of the per-category status matrix reported by
// the operational surface.
type StatusCount struct {
	Category domain.Category
	Status   domain.Status
	Count    int
}

// CursorStore persists per-source "last seen" watermarks.
// Watermarks are non-decreasing once committed; the poll adapter only
// commits after all candidates up to the watermark were handed to the
// deduplicator.
type CursorStore interface {
	// Get returns the watermark for a source.
	// Returns ErrNotFound if no watermark has been saved yet.
	Get(ctx context.Context, sourceID string) (time.Time, error)

	// Set saves the watermark for a source, overwriting any previous one.
	Set(ctx context.Context, sourceID string, watermark time.Time) error
}

// RateEntry is one publish attempt, success or failure. The rate
// limiter's state is derived entirely by scanning entries within the
// trailing window; no separate counter exists to drift.
type RateEntry struct {
	PublishedAt time.Time
	Success     bool
	RecordID    string // empty when the attempt failed before a record ref existed
}

// RateWindowStore persists publish attempts for the rolling-window limiter.
type RateWindowStore interface {
	// Add appends one publish attempt.
	Add(ctx context.Context, e *RateEntry) error

	// CountSince returns the number of entries with published_at >= since.
	CountSince(ctx context.Context, since time.Time) (int, error)

	// OldestSince returns the earliest published_at >= since.
	// Returns ErrNotFound if the window is empty.
	OldestSince(ctx context.Context, since time.Time) (time.Time, error)
}

// SettingStore persists small operational key/value state, such as the
// scheduler's "should be running" flag.
type SettingStore interface {
	// Get returns the value for a key. Returns ErrNotFound if unset.
	Get(ctx context.Context, key string) (string, error)

	// Set saves the value for a key, overwriting any previous one.
	Set(ctx context.Context, key, value string) error
}

// Outcome is one pipeline decision for one observed candidate: admitted,
// duplicate, or a policy rejection with its reason code. Every candidate
// that reaches the pipeline produces exactly one outcome row, so nothing
// is ever dropped silently.
type Outcome struct {
	Category   domain.Category
	NaturalKey string
	SourceID   string
	Code       string
	Value      float64
	OccurredAt time.Time
	ObservedAt time.Time
}

// OutcomeLog is an append-only log of pipeline outcomes.
type OutcomeLog interface {
	// Append adds one outcome. Append is best-effort analytics: callers
	// log failures but do not fail ingestion on them.
	Append(ctx context.Context, o *Outcome) error
}
