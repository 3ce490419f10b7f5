// Package enrich attaches display metadata and USD quotes to records
// before they are stored. Enrichment is best-effort: a failing resolver
// degrades the record, it never rejects it.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
)

// Metadata is what a resolver knows about a name.
type Metadata struct {
	DisplayName string
	ImageRef    string
}

// MetadataResolver resolves display metadata for a domain name.
type MetadataResolver interface {
	Resolve(ctx context.Context, name string) (*Metadata, error)
}

// PriceOracle converts an amount in a given currency into USD at the
// current spot price.
type PriceOracle interface {
	QuoteUSD(ctx context.Context, amount float64, currency domain.Currency) (float64, error)
}

// Options configures an Enricher.
type Options struct {
	Metadata MetadataResolver
	Oracle   PriceOracle
	// CallTimeout bounds each resolver call independently so one slow
	// upstream cannot stall ingestion. Defaults to 5s.
	CallTimeout time.Duration
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Enricher runs both resolvers against a candidate and assembles the
// Enrichment block for its record. Partial results are kept: a metadata
// failure does not discard a successful quote, and vice versa.
type Enricher struct {
	metadata    MetadataResolver
	oracle      PriceOracle
	callTimeout time.Duration
	metrics     *observability.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEnricher creates an Enricher from options. Either resolver may be
// nil, in which case its field is simply never filled.
func NewEnricher(opts Options) *Enricher {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Enricher{
		metadata:    opts.Metadata,
		oracle:      opts.Oracle,
		callTimeout: opts.CallTimeout,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With().Str("component", "enricher").Logger(),
		now:         opts.Now,
	}
}

// Enrich resolves metadata and a USD quote for the candidate. The
// returned Enrichment is never nil; absent fields stay zero and the
// dispatcher falls back to raw values when rendering.
func (e *Enricher) Enrich(ctx context.Context, c domain.Candidate) *domain.Enrichment {
	enr := &domain.Enrichment{}

	if e.metadata != nil && c.Subject() != "" {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		md, err := e.metadata.Resolve(callCtx, c.Subject())
		cancel()
		switch {
		case err != nil:
			e.degrade("metadata", c, err)
		case md != nil:
			enr.DisplayName = md.DisplayName
			if ValidImageRef(md.ImageRef) {
				enr.ImageRef = md.ImageRef
			}
		}
	}

	if e.oracle != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		usd, err := e.oracle.QuoteUSD(callCtx, c.Value(), c.Denomination())
		cancel()
		if err != nil {
			e.degrade("quote", c, err)
		} else {
			enr.USDValue = usd
			enr.QuotedAt = e.now()
		}
	}

	return enr
}

func (e *Enricher) degrade(kind string, c domain.Candidate, err error) {
	if e.metrics != nil {
		e.metrics.EnrichmentFailures.WithLabelValues(kind).Inc()
	}
	e.logger.Warn().
		Err(err).
		Str("kind", kind).
		Str("category", string(c.Category())).
		Str("natural_key", c.NaturalKey()).
		Msg("enrichment degraded")
}

// ValidImageRef reports whether an image reference is safe to store.
// Accepted forms are https URLs and ipfs:// URIs whose CID decodes as
// base58 (CIDv0). Anything else is dropped rather than rendered.
func ValidImageRef(ref string) bool {
	switch {
	case ref == "":
		return false
	case strings.HasPrefix(ref, "https://"):
		return true
	case strings.HasPrefix(ref, "ipfs://"):
		cid := strings.TrimPrefix(ref, "ipfs://")
		cid = strings.SplitN(cid, "/", 2)[0]
		if !strings.HasPrefix(cid, "Qm") {
			return false
		}
		raw, err := base58.Decode(cid)
		return err == nil && len(raw) == 34
	default:
		return false
	}
}
