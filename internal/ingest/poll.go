package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// Fetcher retrieves candidates from an upstream API for one category.
type Fetcher interface {
	// SourceID names the fetcher; it doubles as the cursor key.
	SourceID() string

	// Category is the single category this fetcher produces.
	Category() domain.Category

	// FetchSince returns candidates strictly newer than boundary,
	// paginating internally until the source is exhausted or pageCap
	// pages were read. Order is unspecified; the adapter sorts.
	FetchSince(ctx context.Context, boundary time.Time, pageCap int) ([]domain.Candidate, error)
}

// PollAdapter drives one Fetcher on a cursor. Each run computes a
// boundary of max(cursor, now-maxLookback), fetches, hands candidates
// to the pipeline in ascending event-time order, and advances the
// cursor. The cursor only ever moves forward.
type PollAdapter struct {
	fetcher     Fetcher
	cursors     storage.CursorStore
	pipeline    *Pipeline
	maxLookback time.Duration
	pageCap     int
	metrics     *observability.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// PollAdapterOptions configures a PollAdapter.
type PollAdapterOptions struct {
	Fetcher     Fetcher
	Cursors     storage.CursorStore
	Pipeline    *Pipeline
	MaxLookback time.Duration
	PageCap     int
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	Now         func() time.Time
}

// NewPollAdapter creates a PollAdapter from options.
func NewPollAdapter(opts PollAdapterOptions) *PollAdapter {
	if opts.MaxLookback <= 0 {
		opts.MaxLookback = 2 * time.Hour
	}
	if opts.PageCap <= 0 {
		opts.PageCap = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PollAdapter{
		fetcher:     opts.Fetcher,
		cursors:     opts.Cursors,
		pipeline:    opts.Pipeline,
		maxLookback: opts.MaxLookback,
		pageCap:     opts.PageCap,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With().Str("component", "poll").Str("source", opts.Fetcher.SourceID()).Logger(),
		now:         opts.Now,
	}
}

// Name implements the scheduler's Runner interface.
func (a *PollAdapter) Name() string { return a.fetcher.SourceID() }

// Run performs one poll cycle. A mid-batch pipeline error commits the
// cursor at the last fully-processed candidate before returning, so
// nothing already handed downstream is re-fetched and nothing after
// the failure is skipped.
func (a *PollAdapter) Run(ctx context.Context) error {
	started := a.now()
	defer func() {
		a.metrics.PollLatency.WithLabelValues(a.Name()).Observe(a.now().Sub(started).Seconds())
	}()

	boundary, err := a.boundary(ctx)
	if err != nil {
		return err
	}

	candidates, err := a.fetcher.FetchSince(ctx, boundary, a.pageCap)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", a.Name(), err)
	}

	if len(candidates) == 0 {
		// Advancing to the boundary keeps a cold cursor from re-scanning
		// the same empty window on every run.
		if err := a.cursors.Set(ctx, a.fetcher.SourceID(), boundary); err != nil {
			return fmt.Errorf("advance cursor %s: %w", a.Name(), err)
		}
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].OccurredAt().Before(candidates[j].OccurredAt())
	})

	watermark := boundary
	for _, c := range candidates {
		if _, err := a.pipeline.Process(ctx, c); err != nil {
			// Commit progress up to the failure before bailing out.
			if serr := a.cursors.Set(ctx, a.fetcher.SourceID(), watermark); serr != nil {
				a.logger.Error().Err(serr).Msg("cursor commit after pipeline error failed")
			}
			return fmt.Errorf("process %s candidate %s: %w", a.Name(), c.NaturalKey(), err)
		}
		if t := c.OccurredAt(); t.After(watermark) {
			watermark = t
		}
	}

	if err := a.cursors.Set(ctx, a.fetcher.SourceID(), watermark); err != nil {
		return fmt.Errorf("advance cursor %s: %w", a.Name(), err)
	}

	a.logger.Debug().
		Int("candidates", len(candidates)).
		Time("boundary", boundary).
		Time("watermark", watermark).
		Msg("poll cycle complete")
	return nil
}

// boundary computes max(cursor, now-maxLookback). The lookback clamp
// bounds a cold start or long outage to a fixed fetch window.
func (a *PollAdapter) boundary(ctx context.Context) (time.Time, error) {
	floor := a.now().Add(-a.maxLookback)

	cursor, err := a.cursors.Get(ctx, a.fetcher.SourceID())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return floor, nil
	case err != nil:
		return time.Time{}, fmt.Errorf("load cursor %s: %w", a.Name(), err)
	}

	if cursor.After(floor) {
		return cursor, nil
	}
	return floor, nil
}
