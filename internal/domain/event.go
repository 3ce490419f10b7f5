package domain

import (
	"fmt"
	"time"
)

// Candidate is a transient event produced by a source adapter, before
// deduplication and filtering. Each category has its own concrete type;
// payloads are validated at the adapter boundary so nothing downstream
// deals with loose JSON.
type Candidate interface {
	// Category returns the event category the candidate belongs to.
	Category() Category

	// NaturalKey uniquely identifies the real-world event within its
	// category. It is the deduplication key.
	NaturalKey() string

	// OccurredAt is the event time reported by the origin.
	OccurredAt() time.Time

	// SourceID names the adapter that produced the candidate.
	SourceID() string

	// Subject is the domain name the event is about, empty if the origin
	// did not supply one.
	Subject() string

	// Value is the event value in its denomination currency.
	Value() float64

	// Denomination is the currency Value is expressed in.
	Denomination() Currency
}

// SaleEvent is a completed marketplace sale. Natural key: txHash:logIndex.
type SaleEvent struct {
	TxHash      string
	LogIndex    int
	Name        string
	Buyer       string
	Seller      string
	Price       float64
	Currency    Currency
	Marketplace string
	Time        time.Time
	Source      string
}

func (e *SaleEvent) Category() Category     { return CategorySale }
func (e *SaleEvent) NaturalKey() string     { return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex) }
func (e *SaleEvent) OccurredAt() time.Time  { return e.Time }
func (e *SaleEvent) SourceID() string       { return e.Source }
func (e *SaleEvent) Subject() string        { return e.Name }
func (e *SaleEvent) Value() float64         { return e.Price }
func (e *SaleEvent) Denomination() Currency { return e.Currency }

// RegistrationEvent is a new-name registration. Natural key: token id.
type RegistrationEvent struct {
	TokenID string
	Name    string
	Owner   string
	Cost    float64
	Time    time.Time
	Source  string
}

func (e *RegistrationEvent) Category() Category     { return CategoryRegistration }
func (e *RegistrationEvent) NaturalKey() string     { return e.TokenID }
func (e *RegistrationEvent) OccurredAt() time.Time  { return e.Time }
func (e *RegistrationEvent) SourceID() string       { return e.Source }
func (e *RegistrationEvent) Subject() string        { return e.Name }
func (e *RegistrationEvent) Value() float64         { return e.Cost }
func (e *RegistrationEvent) Denomination() Currency { return CurrencyETH }

// BidStatus is the marketplace-reported state of a bid order.
type BidStatus string

const (
	BidActive    BidStatus = "active"
	BidCancelled BidStatus = "cancelled"
	BidExpired   BidStatus = "expired"
	BidFilled    BidStatus = "filled"
)

// BidEvent is a marketplace bid. Natural key: marketplace order id.
type BidEvent struct {
	OrderID     string
	Name        string
	Bidder      string
	Price       float64
	Currency    Currency
	Status      BidStatus
	Marketplace string
	Time        time.Time
	Source      string
}

func (e *BidEvent) Category() Category     { return CategoryBid }
func (e *BidEvent) NaturalKey() string     { return e.OrderID }
func (e *BidEvent) OccurredAt() time.Time  { return e.Time }
func (e *BidEvent) SourceID() string       { return e.Source }
func (e *BidEvent) Subject() string        { return e.Name }
func (e *BidEvent) Value() float64         { return e.Price }
func (e *BidEvent) Denomination() Currency { return e.Currency }

// Validate checks the fields every candidate must carry before it may
// reach the deduplicator.
func Validate(c Candidate) error {
	if c == nil {
		return fmt.Errorf("nil candidate")
	}
	if !c.Category().Valid() {
		return fmt.Errorf("unknown category %q", c.Category())
	}
	if c.NaturalKey() == "" {
		return fmt.Errorf("%s candidate has empty natural key", c.Category())
	}
	if c.OccurredAt().IsZero() {
		return fmt.Errorf("%s candidate %s has zero event time", c.Category(), c.NaturalKey())
	}
	if c.Value() < 0 {
		return fmt.Errorf("%s candidate %s has negative value", c.Category(), c.NaturalKey())
	}
	return nil
}
