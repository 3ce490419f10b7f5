// Package marketplace talks to the marketplace aggregator API: paged
// REST reads for the poll fetchers and a websocket stream for push
// delivery.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Client is a rate-paced HTTP client for the aggregator REST API.
// Every request waits on the shared pacer first, so the page cap and
// the requests-per-second budget bound third-party cost together.
type Client struct {
	baseURL  string
	http     *http.Client
	pacer    *rate.Limiter
	pageSize int
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	PageSize          int
}

// NewClient creates a Client from options.
func NewClient(opts ClientOptions) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Client{
		baseURL:  opts.BaseURL,
		http:     &http.Client{Timeout: opts.Timeout},
		pacer:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		pageSize: opts.PageSize,
	}
}

// page is one REST page. NextCursor is opaque; empty means exhausted.
type page struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

// fetchPages walks the paged endpoint, newest boundary first, until the
// source is exhausted or pageCap pages were read. Raw items are handed
// back for the caller to decode per category.
func (c *Client) fetchPages(ctx context.Context, path string, boundary time.Time, pageCap int) ([]json.RawMessage, error) {
	var (
		items  []json.RawMessage
		cursor string
	)
	for pageNum := 0; pageNum < pageCap; pageNum++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		p, err := c.fetchPage(ctx, path, boundary, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, p.Items...)

		if p.NextCursor == "" {
			break
		}
		cursor = p.NextCursor
	}
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, path string, boundary time.Time, cursor string) (*page, error) {
	q := url.Values{}
	q.Set("occurred_after", strconv.FormatInt(boundary.Unix(), 10))
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, body)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", path, err)
	}
	return &p, nil
}
