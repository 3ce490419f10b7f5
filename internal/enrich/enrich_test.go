package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*Metadata, error) {
	return nil, errors.New("resolver down")
}

type fixedResolver struct{ md Metadata }

func (r fixedResolver) Resolve(context.Context, string) (*Metadata, error) {
	md := r.md
	return &md, nil
}

func saleCandidate() *domain.SaleEvent {
	return &domain.SaleEvent{
		TxHash:   "0xabc",
		LogIndex: 1,
		Name:     "vault.eth",
		Price:    2.5,
		Currency: domain.CurrencyETH,
		Time:     time.Now(),
		Source:   "test",
	}
}

func TestEnricher_FullEnrichment(t *testing.T) {
	e := NewEnricher(Options{
		Metadata: fixedResolver{md: Metadata{DisplayName: "vault.eth", ImageRef: "https://img.example/vault.png"}},
		Oracle:   &StaticOracle{Rates: map[domain.Currency]float64{domain.CurrencyETH: 2000}},
		Logger:   zerolog.Nop(),
	})

	enr := e.Enrich(context.Background(), saleCandidate())
	if enr.DisplayName != "vault.eth" {
		t.Errorf("display name = %q", enr.DisplayName)
	}
	if enr.ImageRef != "https://img.example/vault.png" {
		t.Errorf("image ref = %q", enr.ImageRef)
	}
	if enr.USDValue != 5000 {
		t.Errorf("usd value = %v, want 5000", enr.USDValue)
	}
	if enr.QuotedAt.IsZero() {
		t.Error("quoted at not set")
	}
}

func TestEnricher_MetadataFailureKeepsQuote(t *testing.T) {
	e := NewEnricher(Options{
		Metadata: failingResolver{},
		Oracle:   &StaticOracle{Rates: map[domain.Currency]float64{domain.CurrencyETH: 2000}},
		Logger:   zerolog.Nop(),
	})

	enr := e.Enrich(context.Background(), saleCandidate())
	if enr == nil {
		t.Fatal("enrichment is nil")
	}
	if enr.DisplayName != "" {
		t.Errorf("display name = %q, want empty", enr.DisplayName)
	}
	if enr.USDValue != 5000 {
		t.Errorf("usd value = %v, want 5000 despite metadata failure", enr.USDValue)
	}
}

func TestEnricher_OracleFailureLeavesQuoteZero(t *testing.T) {
	e := NewEnricher(Options{
		Metadata: PassthroughResolver{},
		Oracle:   &StaticOracle{}, // no ETH rate configured
		Logger:   zerolog.Nop(),
	})

	enr := e.Enrich(context.Background(), saleCandidate())
	if enr.USDValue != 0 || !enr.QuotedAt.IsZero() {
		t.Errorf("quote should be absent, got usd=%v quotedAt=%v", enr.USDValue, enr.QuotedAt)
	}
	if enr.DisplayName != "vault.eth" {
		t.Errorf("display name = %q", enr.DisplayName)
	}
}

func TestStaticOracle_StablecoinDefault(t *testing.T) {
	o := &StaticOracle{}
	usd, err := o.QuoteUSD(context.Background(), 1500, domain.CurrencyUSDC)
	if err != nil {
		t.Fatal(err)
	}
	if usd != 1500 {
		t.Errorf("usd = %v, want 1500", usd)
	}
}

func TestValidImageRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"https://img.example/a.png", true},
		{"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", true},
		{"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG/image.png", true},
		{"ipfs://not-base58-0OIl", false},
		{"ipfs://Qmshort", false},
		{"http://insecure.example/a.png", false},
		{"javascript:alert(1)", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidImageRef(tt.ref); got != tt.want {
			t.Errorf("ValidImageRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
