package models

import "time"

// WebhookEventLog stores raw provider webhook payloads, write-once, for
// forensic replay. It is not consulted for idempotency decisions; those are
// enforced through Payment.ExternalPaymentID.
type WebhookEventLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventType   string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	ExternalID  string    `gorm:"type:varchar(191);not null;index" json:"external_id"`
	PayloadJSON string    `gorm:"type:longtext;not null" json:"payload_json"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
