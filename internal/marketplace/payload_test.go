package marketplace

import (
	"testing"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

func TestParseCandidate_Sale(t *testing.T) {
	data := []byte(`{
		"type": "sale",
		"tx_hash": "0xabc",
		"log_index": 7,
		"name": "vault.eth",
		"buyer": "0xb",
		"seller": "0xs",
		"price": 2.5,
		"currency": "WETH",
		"marketplace": "opensea",
		"timestamp": 1723200000
	}`)

	c, err := ParseCandidate(data, "webhook")
	if err != nil {
		t.Fatal(err)
	}
	sale, ok := c.(*domain.SaleEvent)
	if !ok {
		t.Fatalf("type = %T", c)
	}
	if sale.NaturalKey() != "0xabc:7" {
		t.Errorf("natural key = %q", sale.NaturalKey())
	}
	if sale.Currency != domain.CurrencyWETH {
		t.Errorf("currency = %s", sale.Currency)
	}
	if !sale.Time.Equal(time.Unix(1723200000, 0).UTC()) {
		t.Errorf("time = %v", sale.Time)
	}
	if sale.SourceID() != "webhook" {
		t.Errorf("source = %q", sale.SourceID())
	}
}

func TestParseCandidate_Bid(t *testing.T) {
	data := []byte(`{
		"type": "bid",
		"order_id": "ord-9",
		"name": "vault.eth",
		"bidder": "0xb",
		"price": 1.1,
		"currency": "WETH",
		"status": "active",
		"marketplace": "opensea",
		"timestamp": 1723200000
	}`)

	c, err := ParseCandidate(data, "webhook")
	if err != nil {
		t.Fatal(err)
	}
	bid, ok := c.(*domain.BidEvent)
	if !ok {
		t.Fatalf("type = %T", c)
	}
	if bid.Status != domain.BidActive {
		t.Errorf("status = %s", bid.Status)
	}
	if bid.NaturalKey() != "ord-9" {
		t.Errorf("natural key = %q", bid.NaturalKey())
	}
}

func TestParseCandidate_Registration(t *testing.T) {
	data := []byte(`{
		"type": "registration",
		"token_id": "12345",
		"name": "fresh.eth",
		"owner": "0xo",
		"cost": 0.02,
		"timestamp": 1723200000
	}`)

	c, err := ParseCandidate(data, "webhook")
	if err != nil {
		t.Fatal(err)
	}
	if c.Category() != domain.CategoryRegistration {
		t.Errorf("category = %s", c.Category())
	}
	if c.Denomination() != domain.CurrencyETH {
		t.Errorf("denomination = %s", c.Denomination())
	}
}

func TestParseCandidate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type": "listing", "order_id": "x", "timestamp": 1}`},
		{"not json", `{{{`},
		{"sale without tx hash", `{"type": "sale", "timestamp": 1723200000}`},
		{"bid without order id", `{"type": "bid", "timestamp": 1723200000}`},
		{"registration without timestamp", `{"type": "registration", "token_id": "1"}`},
	}
	for _, tt := range tests {
		if _, err := ParseCandidate([]byte(tt.data), "test"); err == nil {
			t.Errorf("%s: no error", tt.name)
		}
	}
}
