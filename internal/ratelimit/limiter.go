// Package ratelimit implements the rolling 24h publish budget. State is
// derived entirely from the durable attempt log, so a process restart
// cannot reset the window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// Decision is the limiter's answer to "may I publish right now".
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	// ResetAt is when the oldest in-window attempt ages out. Zero when
	// the window is empty.
	ResetAt time.Time `json:"reset_at"`
}

// Limiter enforces a cap on publish attempts within a rolling window.
// Failed attempts consume slots too: a persistently failing publisher
// must not look like free capacity.
type Limiter struct {
	window storage.RateWindowStore
	cap    int
	span   time.Duration
	now    func() time.Time
}

// New creates a Limiter. span defaults to 24h.
func New(window storage.RateWindowStore, cap int, span time.Duration) *Limiter {
	if span <= 0 {
		span = 24 * time.Hour
	}
	return &Limiter{
		window: window,
		cap:    cap,
		span:   span,
		now:    time.Now,
	}
}

// CanPublish scans the trailing window and reports whether another
// attempt fits under the cap. Callers must query immediately before
// each attempt; the decision goes stale the moment anyone publishes.
func (l *Limiter) CanPublish(ctx context.Context) (Decision, error) {
	since := l.now().Add(-l.span)

	used, err := l.window.CountSince(ctx, since)
	if err != nil {
		return Decision{}, fmt.Errorf("count window: %w", err)
	}

	d := Decision{
		Allowed:   used < l.cap,
		Remaining: l.cap - used,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	oldest, err := l.window.OldestSince(ctx, since)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Empty window, nothing to age out.
	case err != nil:
		return Decision{}, fmt.Errorf("oldest in window: %w", err)
	default:
		d.ResetAt = oldest.Add(l.span)
	}
	return d, nil
}

// Record logs one publish attempt, success or failure.
func (l *Limiter) Record(ctx context.Context, success bool, recordID string) error {
	e := &storage.RateEntry{
		PublishedAt: l.now(),
		Success:     success,
		RecordID:    recordID,
	}
	if err := l.window.Add(ctx, e); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}
