package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/memory"
)

type fakeFetcher struct {
	id           string
	candidates   []domain.Candidate
	err          error
	lastBoundary time.Time
}

func (f *fakeFetcher) SourceID() string          { return f.id }
func (f *fakeFetcher) Category() domain.Category { return domain.CategorySale }

func (f *fakeFetcher) FetchSince(_ context.Context, boundary time.Time, _ int) ([]domain.Candidate, error) {
	f.lastBoundary = boundary
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Candidate
	for _, c := range f.candidates {
		if c.OccurredAt().After(boundary) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newPollFixture(t *testing.T, now time.Time, fetcher *fakeFetcher) (*PollAdapter, *memory.CursorStore, *pipelineFixture) {
	t.Helper()
	fx := newPipelineFixture(t, now)
	cursors := memory.NewCursorStore()
	adapter := NewPollAdapter(PollAdapterOptions{
		Fetcher:     fetcher,
		Cursors:     cursors,
		Pipeline:    fx.pipeline,
		MaxLookback: 2 * time.Hour,
		PageCap:     10,
		Metrics:     observability.NewMetricsWith(prometheus.NewRegistry(), "poll_test"),
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return now },
	})
	return adapter, cursors, fx
}

func pollSale(i int, at time.Time) *domain.SaleEvent {
	return &domain.SaleEvent{
		TxHash:   fmt.Sprintf("0x%04d", i),
		LogIndex: i,
		Name:     "vault.eth",
		Price:    1,
		Currency: domain.CurrencyETH,
		Time:     at,
		Source:   "market-sales",
	}
}

func TestPollAdapter_ColdStartUsesLookbackFloor(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{id: "market-sales"}
	adapter, cursors, _ := newPollFixture(t, now, fetcher)
	ctx := context.Background()

	if err := adapter.Run(ctx); err != nil {
		t.Fatal(err)
	}

	wantBoundary := now.Add(-2 * time.Hour)
	if !fetcher.lastBoundary.Equal(wantBoundary) {
		t.Errorf("boundary = %v, want %v", fetcher.lastBoundary, wantBoundary)
	}

	// Empty fetch still advances the cursor to the boundary.
	cur, err := cursors.Get(ctx, "market-sales")
	if err != nil {
		t.Fatal(err)
	}
	if !cur.Equal(wantBoundary) {
		t.Errorf("cursor after empty fetch = %v, want boundary %v", cur, wantBoundary)
	}
}

func TestPollAdapter_AdvancesToMaxObserved(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{
		id: "market-sales",
		// Newest-first, as many APIs return; the adapter must sort.
		candidates: []domain.Candidate{
			pollSale(3, now.Add(-10*time.Minute)),
			pollSale(2, now.Add(-30*time.Minute)),
			pollSale(1, now.Add(-50*time.Minute)),
		},
	}
	adapter, cursors, fx := newPollFixture(t, now, fetcher)
	ctx := context.Background()

	if err := adapter.Run(ctx); err != nil {
		t.Fatal(err)
	}

	cur, err := cursors.Get(ctx, "market-sales")
	if err != nil {
		t.Fatal(err)
	}
	if !cur.Equal(now.Add(-10 * time.Minute)) {
		t.Errorf("cursor = %v, want max observedAt", cur)
	}

	// Candidates reached the pipeline oldest-first.
	outcomes := fx.outcomes.All()
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i].OccurredAt.Before(outcomes[i-1].OccurredAt) {
			t.Errorf("pipeline order not ascending at index %d", i)
		}
	}
}

func TestPollAdapter_CursorNeverRegresses(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{id: "market-sales"}
	adapter, cursors, _ := newPollFixture(t, now, fetcher)
	ctx := context.Background()

	// Cursor already ahead of everything the fetch will return.
	ahead := now.Add(-5 * time.Minute)
	if err := cursors.Set(ctx, "market-sales", ahead); err != nil {
		t.Fatal(err)
	}
	fetcher.candidates = []domain.Candidate{pollSale(1, now.Add(-4*time.Minute))}

	if err := adapter.Run(ctx); err != nil {
		t.Fatal(err)
	}
	cur, _ := cursors.Get(ctx, "market-sales")
	if cur.Before(ahead) {
		t.Errorf("cursor regressed: %v < %v", cur, ahead)
	}
}

func TestPollAdapter_FetchErrorLeavesCursor(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{id: "market-sales", err: errors.New("upstream 500")}
	adapter, cursors, _ := newPollFixture(t, now, fetcher)
	ctx := context.Background()

	before := now.Add(-time.Hour)
	if err := cursors.Set(ctx, "market-sales", before); err != nil {
		t.Fatal(err)
	}

	if err := adapter.Run(ctx); err == nil {
		t.Fatal("fetch error not propagated")
	}
	cur, _ := cursors.Get(ctx, "market-sales")
	if !cur.Equal(before) {
		t.Errorf("cursor moved on failed fetch: %v", cur)
	}
}

type erroringRecordStore struct {
	storage.RecordStore
	failOnKey string
}

func (s *erroringRecordStore) Insert(ctx context.Context, r *domain.Record) error {
	if r.NaturalKey == s.failOnKey {
		return errors.New("store down")
	}
	return s.RecordStore.Insert(ctx, r)
}

func (s *erroringRecordStore) Has(ctx context.Context, category domain.Category, naturalKey string) (bool, error) {
	return s.RecordStore.Has(ctx, category, naturalKey)
}

func TestPollAdapter_MidBatchErrorCommitsProgress(t *testing.T) {
	now := time.Now()
	records := memory.NewRecordStore()
	failing := &erroringRecordStore{RecordStore: records, failOnKey: "0x0002:2"}
	logger := zerolog.Nop()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "midbatch_test")

	filter := NewFilter(testFilterConfig(), nil, logger)
	filter.now = func() time.Time { return now }
	pipeline := NewPipeline(PipelineOptions{
		Dedup:    NewDeduplicator(failing, logger),
		Filter:   filter,
		Enricher: newNopEnricher(),
		Records:  failing,
		Outcomes: memory.NewOutcomeLog(),
		Metrics:  metrics,
		Logger:   logger,
		Now:      func() time.Time { return now },
	})

	first := now.Add(-30 * time.Minute)
	fetcher := &fakeFetcher{
		id: "market-sales",
		candidates: []domain.Candidate{
			pollSale(1, first),
			pollSale(2, now.Add(-20*time.Minute)), // insert fails here
			pollSale(3, now.Add(-10*time.Minute)),
		},
	}
	cursors := memory.NewCursorStore()
	adapter := NewPollAdapter(PollAdapterOptions{
		Fetcher:  fetcher,
		Cursors:  cursors,
		Pipeline: pipeline,
		Metrics:  metrics,
		Logger:   logger,
		Now:      func() time.Time { return now },
	})

	if err := adapter.Run(context.Background()); err == nil {
		t.Fatal("pipeline error not propagated")
	}

	// Cursor committed at the last fully-processed candidate, so the
	// failed one and everything after is re-fetched next run.
	cur, err := cursors.Get(context.Background(), "market-sales")
	if err != nil {
		t.Fatal(err)
	}
	if !cur.Equal(first) {
		t.Errorf("cursor = %v, want %v", cur, first)
	}
}
