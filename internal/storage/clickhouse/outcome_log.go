package clickhouse

import (
	"context"
	"fmt"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// OutcomeLog implements storage.OutcomeLog using ClickHouse.
// Outcomes are analytics, not pipeline state: the table is append-only
// and never consulted by the dedup or dispatch paths.
type OutcomeLog struct {
	conn *Conn
}

// NewOutcomeLog creates a new OutcomeLog.
func NewOutcomeLog(conn *Conn) *OutcomeLog {
	return &OutcomeLog{conn: conn}
}

// Compile-time interface check.
var _ storage.OutcomeLog = (*OutcomeLog)(nil)

// Append adds one outcome.
func (l *OutcomeLog) Append(ctx context.Context, o *storage.Outcome) error {
	if o == nil || o.Code == "" {
		return storage.ErrInvalidInput
	}

	err := l.conn.Exec(ctx, `
		INSERT INTO pipeline_outcomes
			(category, natural_key, source_id, code, value, occurred_at, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(o.Category),
		o.NaturalKey,
		o.SourceID,
		o.Code,
		o.Value,
		o.OccurredAt,
		o.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline outcome: %w", err)
	}
	return nil
}
