package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/enrich"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/idhash"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// Pipeline is the single entry point for candidates from every adapter,
// push or poll. It owns the observe → dedup → filter → enrich → admit
// sequence and writes one outcome row per candidate.
type Pipeline struct {
	dedup    *Deduplicator
	filter   *Filter
	enricher *enrich.Enricher
	records  storage.RecordStore
	outcomes storage.OutcomeLog
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Dedup    *Deduplicator
	Filter   *Filter
	Enricher *enrich.Enricher
	Records  storage.RecordStore
	Outcomes storage.OutcomeLog
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewPipeline creates a Pipeline from options.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		dedup:    opts.Dedup,
		filter:   opts.Filter,
		enricher: opts.Enricher,
		records:  opts.Records,
		outcomes: opts.Outcomes,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "pipeline").Logger(),
		now:      opts.Now,
	}
}

// Process runs one candidate through the full pipeline. The returned
// record is non-nil only when the candidate was admitted and stored.
// Policy rejections and duplicates return (nil, nil); errors are
// infrastructure failures only.
func (p *Pipeline) Process(ctx context.Context, c domain.Candidate) (*domain.Record, error) {
	if err := domain.Validate(c); err != nil {
		// Invalid candidates still get an outcome row when they carry
		// enough identity to write one.
		if c != nil && c.NaturalKey() != "" {
			p.recordOutcome(ctx, c, OutcomeInvalid)
		}
		p.countRejection(c, OutcomeInvalid)
		return nil, nil
	}

	p.metrics.CandidatesObserved.WithLabelValues(string(c.Category()), c.SourceID()).Inc()

	seen, err := p.dedup.Seen(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		p.metrics.Duplicates.WithLabelValues(string(c.Category())).Inc()
		p.recordOutcome(ctx, c, OutcomeDuplicate)
		return nil, nil
	}

	ok, code, err := p.filter.Evaluate(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if !ok {
		p.countRejection(c, code)
		p.recordOutcome(ctx, c, code)
		p.logger.Debug().
			Str("category", string(c.Category())).
			Str("natural_key", c.NaturalKey()).
			Str("outcome", code).
			Msg("candidate rejected by policy")
		return nil, nil
	}

	enr := p.enricher.Enrich(ctx, c)

	rec := p.buildRecord(c, enr)
	admitted, err := p.dedup.Admit(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("admit record: %w", err)
	}
	if !admitted {
		p.metrics.Duplicates.WithLabelValues(string(c.Category())).Inc()
		p.recordOutcome(ctx, c, OutcomeDuplicate)
		return nil, nil
	}

	p.metrics.RecordsStored.WithLabelValues(string(c.Category())).Inc()
	p.recordOutcome(ctx, c, OutcomeAdmitted)
	p.logger.Info().
		Str("category", string(c.Category())).
		Str("natural_key", c.NaturalKey()).
		Str("name", c.Subject()).
		Float64("value", c.Value()).
		Msg("record admitted")
	return rec, nil
}

func (p *Pipeline) buildRecord(c domain.Candidate, enr *domain.Enrichment) *domain.Record {
	now := p.now()
	rec := &domain.Record{
		ID:         idhash.RecordID(c.Category(), c.NaturalKey()),
		Category:   c.Category(),
		NaturalKey: c.NaturalKey(),
		Name:       c.Subject(),
		OccurredAt: c.OccurredAt(),
		ReceivedAt: now,
		Status:     domain.StatusUnposted,
		Value:      c.Value(),
		Currency:   c.Denomination(),
		Enrichment: enr,
		CreatedAt:  now,
	}
	switch ev := c.(type) {
	case *domain.SaleEvent:
		rec.Marketplace = ev.Marketplace
	case *domain.BidEvent:
		rec.Marketplace = ev.Marketplace
	}
	return rec
}

func (p *Pipeline) countRejection(c domain.Candidate, code string) {
	category := "unknown"
	if c != nil {
		category = string(c.Category())
	}
	p.metrics.PolicyRejections.WithLabelValues(category, code).Inc()
}

// recordOutcome appends to the analytics log. Failures are logged and
// swallowed: the outcome log must never take down ingestion.
func (p *Pipeline) recordOutcome(ctx context.Context, c domain.Candidate, code string) {
	if p.outcomes == nil {
		return
	}
	o := &storage.Outcome{
		Category:   c.Category(),
		NaturalKey: c.NaturalKey(),
		SourceID:   c.SourceID(),
		Code:       code,
		Value:      c.Value(),
		OccurredAt: c.OccurredAt(),
		ObservedAt: p.now(),
	}
	if err := p.outcomes.Append(ctx, o); err != nil {
		p.logger.Warn().Err(err).Str("code", code).Msg("outcome append failed")
	}
}
