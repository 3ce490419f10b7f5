package publish

import (
	"fmt"
	"strings"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// Composer renders a record into post text. Rendering prefers enriched
// fields and falls back to raw on-chain values when enrichment was
// degraded at ingest time.
type Composer struct{}

// NewComposer creates a Composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose returns the post text and the media reference (empty when the
// record has no usable image).
func (c *Composer) Compose(r *domain.Record) (text, mediaRef string) {
	name := r.Name
	if r.Enrichment != nil && r.Enrichment.DisplayName != "" {
		name = r.Enrichment.DisplayName
	}

	var b strings.Builder
	switch r.Category {
	case domain.CategorySale:
		fmt.Fprintf(&b, "%s sold for %s", name, c.amount(r))
		if r.Marketplace != "" {
			fmt.Fprintf(&b, " on %s", r.Marketplace)
		}
	case domain.CategoryRegistration:
		fmt.Fprintf(&b, "%s was just registered for %s", name, c.amount(r))
	case domain.CategoryBid:
		fmt.Fprintf(&b, "New bid on %s: %s", name, c.amount(r))
		if r.Marketplace != "" {
			fmt.Fprintf(&b, " on %s", r.Marketplace)
		}
	default:
		fmt.Fprintf(&b, "%s: %s", name, c.amount(r))
	}

	if r.Enrichment != nil {
		mediaRef = r.Enrichment.ImageRef
	}
	return b.String(), mediaRef
}

// amount renders the value line: raw denomination always, USD alongside
// when a quote was captured.
func (c *Composer) amount(r *domain.Record) string {
	raw := fmt.Sprintf("%s %s", trimAmount(r.Value), r.Currency)
	if r.Enrichment != nil && r.Enrichment.USDValue > 0 && !r.Currency.Stable() {
		return fmt.Sprintf("%s ($%s)", raw, trimAmount(r.Enrichment.USDValue))
	}
	return raw
}

func trimAmount(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
