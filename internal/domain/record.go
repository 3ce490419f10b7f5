package domain

import "time"

// Status is the publish lifecycle state of an ingested record.
// Transitions: unposted → posted (sets publish ref) or unposted → failed
// (terminal). Records are never deleted by the pipeline.
type Status string

const (
	StatusUnposted Status = "unposted"
	StatusPosted   Status = "posted"
	StatusFailed   Status = "failed"
)

// Enrichment is display metadata attached to an accepted record.
// It is optional: a record with nil enrichment is still publishable and
// falls back to the raw on-chain value for display.
type Enrichment struct {
	DisplayName string
	ImageRef    string
	USDValue    float64
	QuotedAt    time.Time
}

// Record is one durable ingested event. (Category, NaturalKey) is unique,
// enforced by the record store's constraint rather than by pipeline logic,
// because two adapters may race to insert the same natural key.
type Record struct {
	ID          string
	Category    Category
	NaturalKey  string
	Name        string
	OccurredAt  time.Time
	ReceivedAt  time.Time
	Status      Status
	PublishRef  string
	Value       float64
	Currency    Currency
	Marketplace string
	Enrichment  *Enrichment
	CreatedAt   time.Time
}

// StatusChange is the payload delivered on the change notification
// channel when a record's status flips. Delivery is at-least-once; the
// follow-up consumer is responsible for idempotency.
type StatusChange struct {
	RecordID  string `json:"record_id"`
	NewStatus Status `json:"new_status"`
}

// StatusChangeTopic is the notification channel topic for status
// transitions, regardless of category or originating adapter.
const StatusChangeTopic = "record-status-changes"
