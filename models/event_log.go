package models

import "time"

// WebhookEventLog is the raw webhook archive document written to MongoDB.
// Best effort only; Postgres webhook_events remains the dedup authority.
type WebhookEventLog struct {
	EventUID   string    `bson:"event_uid"`
	InboxID    string    `bson:"inbox_id"`
	CompanyID  string    `bson:"company_id,omitempty"`
	Provider   string    `bson:"provider"`
	Payload    string    `bson:"payload"`
	ReceivedAt time.Time `bson:"received_at"`
}
