package memory

import (
	"context"
	"sync"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// OutcomeLog is an in-memory implementation of storage.OutcomeLog.
// Used in tests and -use-memory runs in place of ClickHouse.
type OutcomeLog struct {
	mu       sync.RWMutex
	outcomes []storage.Outcome
}

// NewOutcomeLog creates a new in-memory outcome log.
func NewOutcomeLog() *OutcomeLog {
	return &OutcomeLog{}
}

// Compile-time interface check.
var _ storage.OutcomeLog = (*OutcomeLog)(nil)

// Append adds one outcome.
func (l *OutcomeLog) Append(_ context.Context, o *storage.Outcome) error {
	if o == nil || o.Code == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.outcomes = append(l.outcomes, *o)
	return nil
}

// All returns a copy of every appended outcome, in append order.
func (l *OutcomeLog) All() []storage.Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]storage.Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}
