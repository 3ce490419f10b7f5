// Package dispatch publishes unposted records under the rolling rate
// budget. The dispatcher is the only writer of record status.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/publish"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ratelimit"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// scanLimit bounds how many unposted records one dispatch pass loads
// per category.
const scanLimit = 50

// errRateWindow marks a failed durable write of a publish attempt. The
// window is the only ledger against the daily cap, so losing a write
// ends the dispatch pass instead of publishing uncounted attempts.
var errRateWindow = errors.New("rate window write failed")

// Dispatcher publishes records and owns their status transitions.
type Dispatcher struct {
	records   storage.RecordStore
	limiter   *ratelimit.Limiter
	publisher publish.Publisher
	composer  *publish.Composer
	notifier  message.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Options configures a Dispatcher.
type Options struct {
	Records   storage.RecordStore
	Limiter   *ratelimit.Limiter
	Publisher publish.Publisher
	Composer  *publish.Composer
	Notifier  message.Publisher
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	Now       func() time.Time
}

// New creates a Dispatcher from options.
func New(opts Options) *Dispatcher {
	if opts.Composer == nil {
		opts.Composer = publish.NewComposer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		records:   opts.Records,
		limiter:   opts.Limiter,
		publisher: opts.Publisher,
		composer:  opts.Composer,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With().Str("component", "dispatch").Logger(),
		now:       opts.Now,
		inflight:  make(map[string]struct{}),
	}
}

// Name implements the scheduler's Runner interface.
func (d *Dispatcher) Name() string { return "dispatch" }

// Run performs one dispatch pass over all categories.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.DispatchReady(ctx)
}

// DispatchReady publishes unposted records, oldest impact first within
// each category, until the limiter says stop or the backlog drains.
// The limiter is consulted immediately before every attempt; the
// decision is never cached across records.
func (d *Dispatcher) DispatchReady(ctx context.Context) error {
	unposted := domain.StatusUnposted
	for _, category := range domain.Categories {
		records, err := d.records.ListRecent(ctx, category, scanLimit, &unposted)
		if err != nil {
			return fmt.Errorf("list unposted %s: %w", category, err)
		}

		// ListRecent is newest-first; publish the backlog oldest-first.
		for i := len(records) - 1; i >= 0; i-- {
			decision, err := d.limiter.CanPublish(ctx)
			if err != nil {
				return fmt.Errorf("rate limit check: %w", err)
			}
			if !decision.Allowed {
				d.metrics.RateLimitedSkips.Inc()
				d.logger.Info().
					Time("reset_at", decision.ResetAt).
					Msg("publish budget exhausted, pass ends")
				return nil
			}

			if err := d.Dispatch(ctx, records[i]); err != nil {
				if errors.Is(err, errRateWindow) {
					return err
				}
				d.logger.Warn().Err(err).
					Str("record_id", records[i].ID).
					Msg("dispatch failed, continuing pass")
			}
		}
	}
	return nil
}

// Dispatch publishes a single record. Preconditions: the record is
// unposted and the limiter currently allows an attempt; DispatchReady
// checks the latter, direct callers must too.
func (d *Dispatcher) Dispatch(ctx context.Context, r *domain.Record) error {
	if r.Status != domain.StatusUnposted {
		return fmt.Errorf("record %s is %s, not unposted", r.ID, r.Status)
	}
	if !d.acquire(r.ID) {
		// Another dispatch of this record is in flight; drop, don't queue.
		return nil
	}
	defer d.release(r.ID)

	text, mediaRef := d.composer.Compose(r)
	ref, pubErr := d.publisher.Publish(ctx, text, mediaRef)

	if pubErr != nil {
		// Failed attempts consume budget too.
		if err := d.limiter.Record(ctx, false, r.ID); err != nil {
			return fmt.Errorf("%w for %s: %v", errRateWindow, r.ID, err)
		}
		return d.handleFailure(ctx, r, pubErr)
	}

	if err := d.records.SetStatus(ctx, r.ID, domain.StatusUnposted, domain.StatusPosted, ref); err != nil {
		return fmt.Errorf("mark posted %s: %w", r.ID, err)
	}
	if err := d.limiter.Record(ctx, true, r.ID); err != nil {
		// The transition already committed, so the notification still
		// goes out before the error stops the pass.
		d.notify(r.ID, domain.StatusPosted)
		return fmt.Errorf("%w for %s: %v", errRateWindow, r.ID, err)
	}

	d.metrics.PublishAttempts.WithLabelValues("success").Inc()
	d.metrics.LastSuccessfulDispatch.Set(float64(d.now().Unix()))
	d.logger.Info().
		Str("record_id", r.ID).
		Str("category", string(r.Category)).
		Str("publish_ref", ref).
		Msg("record posted")

	d.notify(r.ID, domain.StatusPosted)
	return nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, r *domain.Record, pubErr error) error {
	if publish.IsPermanent(pubErr) {
		d.metrics.PublishAttempts.WithLabelValues("permanent").Inc()
		if err := d.records.SetStatus(ctx, r.ID, domain.StatusUnposted, domain.StatusFailed, ""); err != nil {
			return fmt.Errorf("mark failed %s: %w", r.ID, err)
		}
		d.logger.Warn().Err(pubErr).Str("record_id", r.ID).Msg("record permanently rejected")
		d.notify(r.ID, domain.StatusFailed)
		return pubErr
	}

	// Transient: the record stays unposted for a later pass.
	d.metrics.PublishAttempts.WithLabelValues("transient").Inc()
	d.logger.Warn().Err(pubErr).Str("record_id", r.ID).Msg("transient publish failure")
	return pubErr
}

// notify emits the status-change message. Notification delivery is
// at-least-once downstream; a local publish failure is logged, never
// propagated, because the status transition already committed.
func (d *Dispatcher) notify(recordID string, status domain.Status) {
	if d.notifier == nil {
		return
	}
	payload, err := json.Marshal(domain.StatusChange{RecordID: recordID, NewStatus: status})
	if err != nil {
		d.logger.Error().Err(err).Msg("status change marshal failed")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := d.notifier.Publish(domain.StatusChangeTopic, msg); err != nil {
		d.logger.Error().Err(err).Str("record_id", recordID).Msg("status change notify failed")
	}
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}
