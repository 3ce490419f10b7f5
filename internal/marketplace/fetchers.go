package marketplace

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// Fetcher pulls one category's events from the REST API. It satisfies
// the poll adapter's fetcher contract.
type Fetcher struct {
	client   *Client
	category domain.Category
	sourceID string
	path     string
	logger   zerolog.Logger
}

func newFetcher(client *Client, category domain.Category, sourceID, path string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		category: category,
		sourceID: sourceID,
		path:     path,
		logger:   logger.With().Str("component", "fetcher").Str("source", sourceID).Logger(),
	}
}

// NewSalesFetcher polls completed sales.
func NewSalesFetcher(client *Client, logger zerolog.Logger) *Fetcher {
	return newFetcher(client, domain.CategorySale, "market-sales", "/api/v1/sales", logger)
}

// NewRegistrationsFetcher polls new registrations.
func NewRegistrationsFetcher(client *Client, logger zerolog.Logger) *Fetcher {
	return newFetcher(client, domain.CategoryRegistration, "market-registrations", "/api/v1/registrations", logger)
}

// NewBidsFetcher polls bid orders.
func NewBidsFetcher(client *Client, logger zerolog.Logger) *Fetcher {
	return newFetcher(client, domain.CategoryBid, "market-bids", "/api/v1/bids", logger)
}

func (f *Fetcher) SourceID() string          { return f.sourceID }
func (f *Fetcher) Category() domain.Category { return f.category }

// FetchSince returns candidates newer than boundary. Individual rows
// that fail to decode are logged and skipped; one malformed row must
// not block the whole window.
func (f *Fetcher) FetchSince(ctx context.Context, boundary time.Time, pageCap int) ([]domain.Candidate, error) {
	items, err := f.client.fetchPages(ctx, f.path, boundary, pageCap)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		c, err := f.decode(item)
		if err != nil {
			f.logger.Warn().Err(err).Msg("malformed row skipped")
			continue
		}
		if !c.OccurredAt().After(boundary) {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// decode wraps the untagged REST row with this fetcher's category tag
// and reuses the strict stream codec.
func (f *Fetcher) decode(item json.RawMessage) (domain.Candidate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(f.category) + `"`)
	tagged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return ParseCandidate(tagged, f.sourceID)
}
