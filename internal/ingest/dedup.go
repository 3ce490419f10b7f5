package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// Deduplicator suppresses repeat observations of the same real-world
// event. The in-memory cache and the store's Has lookup are advisory
// fast paths; the authoritative decision is Admit, which relies on the
// record store's uniqueness constraint so that two adapters racing on
// the same natural key resolve to exactly one winner.
type Deduplicator struct {
	records storage.RecordStore
	logger  zerolog.Logger

	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewDeduplicator creates a Deduplicator backed by the given store.
func NewDeduplicator(records storage.RecordStore, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		records: records,
		logger:  logger.With().Str("component", "dedup").Logger(),
		seen:    make(map[string]struct{}),
	}
}

func dedupKey(category domain.Category, naturalKey string) string {
	return string(category) + "|" + naturalKey
}

// Seen reports whether the candidate has already been observed. It may
// return a stale false under concurrency; callers must still go through
// Admit before treating the candidate as new.
func (d *Deduplicator) Seen(ctx context.Context, c domain.Candidate) (bool, error) {
	key := dedupKey(c.Category(), c.NaturalKey())

	d.mu.RLock()
	_, ok := d.seen[key]
	d.mu.RUnlock()
	if ok {
		return true, nil
	}

	has, err := d.records.Has(ctx, c.Category(), c.NaturalKey())
	if err != nil {
		return false, err
	}
	if has {
		d.mu.Lock()
		d.seen[key] = struct{}{}
		d.mu.Unlock()
	}
	return has, nil
}

// Admit attempts the authoritative insert. It returns admitted=false
// with a nil error when the record lost a duplicate race, and caches
// the key either way so later observations short-circuit in memory.
func (d *Deduplicator) Admit(ctx context.Context, r *domain.Record) (admitted bool, err error) {
	err = d.records.Insert(ctx, r)

	switch {
	case err == nil:
		admitted = true
	case errors.Is(err, storage.ErrDuplicateKey):
		admitted, err = false, nil
		d.logger.Debug().
			Str("category", string(r.Category)).
			Str("natural_key", r.NaturalKey).
			Msg("lost duplicate race")
	default:
		return false, err
	}

	d.mu.Lock()
	d.seen[dedupKey(r.Category, r.NaturalKey)] = struct{}{}
	d.mu.Unlock()
	return admitted, nil
}
