package model

import "time"

// MaxPaymentEventPayload bounds the audit copy of an event body.
const MaxPaymentEventPayload = 5000

// ProcessedPaymentEvent is an entry of the payment event ledger.  EventID is
// the provider's event id and is unique; rows are immutable.
type ProcessedPaymentEvent struct {
	ID          uint64    `db:"id"`           // processed_payment_events.id
	EventID     string    `db:"event_id"`     // processed_payment_events.event_id
	EventType   string    `db:"event_type"`   // processed_payment_events.event_type
	ProcessedAt time.Time `db:"processed_at"` // processed_payment_events.processed_at
	Payload     string    `db:"payload"`      // processed_payment_events.payload
}
