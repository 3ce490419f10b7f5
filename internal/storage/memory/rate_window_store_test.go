package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

func TestRateWindowStore_CountSince(t *testing.T) {
	store := NewRateWindowStore()
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		e := &storage.RateEntry{PublishedAt: base.Add(time.Duration(i) * time.Hour), Success: true}
		if err := store.Add(ctx, e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	count, err := store.CountSince(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 entries at or after boundary, got %d", count)
	}

	// Boundary is inclusive.
	count, err = store.CountSince(ctx, base)
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 entries, got %d", count)
	}
}

func TestRateWindowStore_OldestSince(t *testing.T) {
	store := NewRateWindowStore()
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	times := []time.Time{base.Add(3 * time.Hour), base, base.Add(time.Hour)}
	for _, ts := range times {
		if err := store.Add(ctx, &storage.RateEntry{PublishedAt: ts, Success: false}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	oldest, err := store.OldestSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("OldestSince failed: %v", err)
	}
	if !oldest.Equal(base.Add(time.Hour)) {
		t.Errorf("expected oldest %v, got %v", base.Add(time.Hour), oldest)
	}
}

func TestRateWindowStore_OldestSinceEmpty(t *testing.T) {
	store := NewRateWindowStore()

	_, err := store.OldestSince(context.Background(), time.Unix(1700000000, 0))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty window, got %v", err)
	}
}

func TestCursorStore_GetSet(t *testing.T) {
	store := NewCursorStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "sales-poller")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for cold cursor, got %v", err)
	}

	w := time.Unix(1700000000, 0)
	if err := store.Set(ctx, "sales-poller", w); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "sales-poller")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Equal(w) {
		t.Errorf("watermark mismatch: got %v, want %v", got, w)
	}
}

func TestSettingStore_GetSet(t *testing.T) {
	store := NewSettingStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "scheduler:enabled")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unset key, got %v", err)
	}

	if err := store.Set(ctx, "scheduler:enabled", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, "scheduler:enabled")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "true" {
		t.Errorf("expected true, got %s", got)
	}
}
