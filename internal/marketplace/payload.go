package marketplace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// Wire payloads are tagged variants: the "type" field names the
// category and the rest of the body is decoded strictly against that
// category's shape. Loose field extraction is deliberately absent.

type saleBody struct {
	TxHash      string  `json:"tx_hash"`
	LogIndex    int     `json:"log_index"`
	Name        string  `json:"name"`
	Buyer       string  `json:"buyer"`
	Seller      string  `json:"seller"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Marketplace string  `json:"marketplace"`
	Timestamp   int64   `json:"timestamp"`
}

type registrationBody struct {
	TokenID   string  `json:"token_id"`
	Name      string  `json:"name"`
	Owner     string  `json:"owner"`
	Cost      float64 `json:"cost"`
	Timestamp int64   `json:"timestamp"`
}

type bidBody struct {
	OrderID     string  `json:"order_id"`
	Name        string  `json:"name"`
	Bidder      string  `json:"bidder"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	Marketplace string  `json:"marketplace"`
	Timestamp   int64   `json:"timestamp"`
}

// ParseCandidate decodes one tagged event payload into its concrete
// candidate type. Unknown tags are an error, not a skip: an upstream
// schema change should be loud.
func ParseCandidate(data []byte, sourceID string) (domain.Candidate, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}

	switch domain.Category(tag.Type) {
	case domain.CategorySale:
		var b saleBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode sale: %w", err)
		}
		return parseSale(&b, sourceID)
	case domain.CategoryRegistration:
		var b registrationBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode registration: %w", err)
		}
		return parseRegistration(&b, sourceID)
	case domain.CategoryBid:
		var b bidBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode bid: %w", err)
		}
		return parseBid(&b, sourceID)
	default:
		return nil, fmt.Errorf("unknown event type %q", tag.Type)
	}
}

func parseSale(b *saleBody, sourceID string) (domain.Candidate, error) {
	if b.TxHash == "" {
		return nil, fmt.Errorf("sale missing tx_hash")
	}
	if b.Timestamp <= 0 {
		return nil, fmt.Errorf("sale %s:%d missing timestamp", b.TxHash, b.LogIndex)
	}
	return &domain.SaleEvent{
		TxHash:      b.TxHash,
		LogIndex:    b.LogIndex,
		Name:        b.Name,
		Buyer:       b.Buyer,
		Seller:      b.Seller,
		Price:       b.Price,
		Currency:    domain.Currency(b.Currency),
		Marketplace: b.Marketplace,
		Time:        time.Unix(b.Timestamp, 0).UTC(),
		Source:      sourceID,
	}, nil
}

func parseRegistration(b *registrationBody, sourceID string) (domain.Candidate, error) {
	if b.TokenID == "" {
		return nil, fmt.Errorf("registration missing token_id")
	}
	if b.Timestamp <= 0 {
		return nil, fmt.Errorf("registration %s missing timestamp", b.TokenID)
	}
	return &domain.RegistrationEvent{
		TokenID: b.TokenID,
		Name:    b.Name,
		Owner:   b.Owner,
		Cost:    b.Cost,
		Time:    time.Unix(b.Timestamp, 0).UTC(),
		Source:  sourceID,
	}, nil
}

func parseBid(b *bidBody, sourceID string) (domain.Candidate, error) {
	if b.OrderID == "" {
		return nil, fmt.Errorf("bid missing order_id")
	}
	if b.Timestamp <= 0 {
		return nil, fmt.Errorf("bid %s missing timestamp", b.OrderID)
	}
	return &domain.BidEvent{
		OrderID:     b.OrderID,
		Name:        b.Name,
		Bidder:      b.Bidder,
		Price:       b.Price,
		Currency:    domain.Currency(b.Currency),
		Status:      domain.BidStatus(b.Status),
		Marketplace: b.Marketplace,
		Time:        time.Unix(b.Timestamp, 0).UTC(),
		Source:      sourceID,
	}, nil
}
