// Package followup reacts to records becoming posted. Notification
// delivery is at-least-once; idempotency lives here, keyed on the
// record id, not in the transport.
package followup

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
)

// Action is the downstream effect triggered once per posted record.
type Action interface {
	OnPosted(ctx context.Context, recordID string) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, recordID string) error

func (f ActionFunc) OnPosted(ctx context.Context, recordID string) error {
	return f(ctx, recordID)
}

// Consumer subscribes to status-change notifications and triggers the
// action exactly once per record that transitioned to posted.
type Consumer struct {
	subscriber message.Subscriber
	action     Action
	metrics    *observability.Metrics
	logger     zerolog.Logger

	// done grows for the process lifetime, which is bounded for the
	// in-process channel: a durable broker swap needs a persisted
	// dedup set or an eviction policy here.
	mu   sync.Mutex
	done map[string]struct{}
}

// NewConsumer creates a Consumer.
func NewConsumer(subscriber message.Subscriber, action Action, metrics *observability.Metrics, logger zerolog.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		action:     action,
		metrics:    metrics,
		logger:     logger.With().Str("component", "followup").Logger(),
		done:       make(map[string]struct{}),
	}
}

// Run consumes notifications until the context is cancelled or the
// subscription closes. Malformed or irrelevant messages are acked and
// dropped; only the action's own failure nacks for redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, domain.StatusChangeTopic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-messages:
			if !open {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var change domain.StatusChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		c.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("malformed status change dropped")
		msg.Ack()
		return
	}

	if change.NewStatus != domain.StatusPosted {
		msg.Ack()
		return
	}

	if !c.claim(change.RecordID) {
		// Duplicate delivery of an already-handled transition.
		msg.Ack()
		return
	}

	if err := c.action.OnPosted(ctx, change.RecordID); err != nil {
		// Release the claim so a redelivery can retry the action.
		c.unclaim(change.RecordID)
		c.logger.Error().Err(err).Str("record_id", change.RecordID).Msg("follow-up action failed")
		msg.Nack()
		return
	}

	c.metrics.FollowupActions.Inc()
	c.logger.Debug().Str("record_id", change.RecordID).Msg("follow-up action done")
	msg.Ack()
}

func (c *Consumer) claim(recordID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.done[recordID]; ok {
		return false
	}
	c.done[recordID] = struct{}{}
	return true
}

func (c *Consumer) unclaim(recordID string) {
	c.mu.Lock()
	delete(c.done, recordID)
	c.mu.Unlock()
}
