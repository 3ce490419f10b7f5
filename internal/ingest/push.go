package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// PushAdapter forwards externally-delivered candidates straight into
// the pipeline. It has no cursor; delivery guarantees are the
// transport's problem, duplicates are the deduplicator's.
type PushAdapter struct {
	pipeline *Pipeline
	logger   zerolog.Logger
}

// NewPushAdapter creates a PushAdapter.
func NewPushAdapter(pipeline *Pipeline, logger zerolog.Logger) *PushAdapter {
	return &PushAdapter{
		pipeline: pipeline,
		logger:   logger.With().Str("component", "push").Logger(),
	}
}

// Deliver hands one candidate to the pipeline.
func (a *PushAdapter) Deliver(ctx context.Context, c domain.Candidate) error {
	_, err := a.pipeline.Process(ctx, c)
	return err
}

// Consume drains a candidate channel until it closes or the context is
// cancelled. Pipeline errors on individual candidates are logged and
// skipped; a stream consumer must not die on one bad upstream row.
func (a *PushAdapter) Consume(ctx context.Context, ch <-chan domain.Candidate) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, open := <-ch:
			if !open {
				return
			}
			if err := a.Deliver(ctx, c); err != nil {
				a.logger.Error().Err(err).
					Str("natural_key", c.NaturalKey()).
					Msg("push candidate failed")
			}
		}
	}
}
