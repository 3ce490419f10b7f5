package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/classify"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/config"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// Outcome codes recorded for every candidate handed to the pipeline.
const (
	OutcomeAdmitted       = "admitted"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalid        = "invalid"
	OutcomeUnresolvable   = "unresolvable"
	OutcomeInactive       = "inactive"
	OutcomeStale          = "stale"
	OutcomeBelowThreshold = "below_threshold"
)

// Filter applies the category-aware acceptance policy. Checks run in a
// fixed order and the first failure wins, so the outcome code always
// names the cheapest reason a candidate was turned away.
type Filter struct {
	cfg        config.Filter
	classifier classify.Classifier
	logger     zerolog.Logger
	now        func() time.Time
}

// NewFilter creates a Filter. classifier may be nil, in which case no
// club minimums apply and every name gets the default threshold.
func NewFilter(cfg config.Filter, classifier classify.Classifier, logger zerolog.Logger) *Filter {
	return &Filter{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger.With().Str("component", "filter").Logger(),
		now:        time.Now,
	}
}

// Evaluate decides whether the candidate passes policy. ok=false comes
// with the outcome code naming the rejection reason; err is reserved
// for infrastructure failures, never policy decisions.
func (f *Filter) Evaluate(ctx context.Context, c domain.Candidate) (ok bool, code string, err error) {
	if bid, isBid := c.(*domain.BidEvent); isBid && bid.Status != domain.BidActive {
		return false, OutcomeInactive, nil
	}

	if c.Subject() == "" {
		return false, OutcomeUnresolvable, nil
	}

	age := f.now().Sub(c.OccurredAt())
	if age > f.maxAge(c.Category()) {
		return false, OutcomeStale, nil
	}

	min, err := f.minimum(ctx, c)
	if err != nil {
		return false, "", err
	}
	if c.Value() < min {
		return false, OutcomeBelowThreshold, nil
	}

	return true, OutcomeAdmitted, nil
}

func (f *Filter) maxAge(category domain.Category) time.Duration {
	switch category {
	case domain.CategoryRegistration:
		return f.cfg.RegistrationMaxAge
	case domain.CategoryBid:
		return f.cfg.BidMaxAge
	default:
		return f.cfg.SaleMaxAge
	}
}

// minimum returns the threshold the candidate's value must meet, in the
// candidate's own denomination. Stablecoin values compare against the
// absolute USD minimum; everything else compares against
// max(club minimum for each matching tag, DefaultMinETH).
func (f *Filter) minimum(ctx context.Context, c domain.Candidate) (float64, error) {
	if c.Denomination().Stable() {
		return f.cfg.StableMinUSD, nil
	}

	min := f.cfg.DefaultMinETH
	if f.classifier == nil {
		return min, nil
	}

	tags, err := f.classifier.TagsFor(ctx, c.Subject())
	if err != nil {
		// A broken classifier must not drop events on the floor; fall
		// back to the default threshold and let the log tell the story.
		f.logger.Warn().Err(err).Str("name", c.Subject()).Msg("classifier failed, using default minimum")
		return min, nil
	}

	perTag := f.cfg.PerTagMinimums()
	for _, tag := range tags {
		if m, ok := perTag[tag]; ok && m > min {
			min = m
		}
	}
	return min, nil
}
