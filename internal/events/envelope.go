package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeReminderSent   = "reminders.sent.v1"
	TypeReminderFailed = "reminders.failed.v1"
	TypeBatchCompleted = "reminders.batch_completed.v1"
)

type Meta struct {
	// Batch id of the dispatch run that emitted the event
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	// Event name and version, e.g. reminders.sent.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps data for eventType. The event type doubles as routing key.
func NewEnvelope(eventType, producer, correlationID string, at time.Time, data any) Envelope {
	meta := Meta{
		ID:   uuid.NewString(),
		Time: at,
		Type: eventType,
	}
	if producer != "" {
		meta.Producer = &producer
	}
	if correlationID != "" {
		meta.CorrelationID = &correlationID
	}
	return Envelope{Meta: meta, Data: data}
}
