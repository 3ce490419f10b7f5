package enrich

import (
	"context"
	"fmt"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// StaticOracle quotes from a fixed currency→USD rate table. Useful for
// tests and for running without a live price feed.
type StaticOracle struct {
	Rates map[domain.Currency]float64
}

var _ PriceOracle = (*StaticOracle)(nil)

// QuoteUSD multiplies the amount by the configured rate.
// Stablecoins default to 1.0 when no rate is configured.
func (o *StaticOracle) QuoteUSD(_ context.Context, amount float64, currency domain.Currency) (float64, error) {
	if rate, ok := o.Rates[currency]; ok {
		return amount * rate, nil
	}
	if currency.Stable() {
		return amount, nil
	}
	return 0, fmt.Errorf("no rate for currency %q", currency)
}

// PassthroughResolver returns the name itself as display name, with no
// image. Used when no metadata backend is configured.
type PassthroughResolver struct{}

var _ MetadataResolver = (*PassthroughResolver)(nil)

func (PassthroughResolver) Resolve(_ context.Context, name string) (*Metadata, error) {
	return &Metadata{DisplayName: name}, nil
}
