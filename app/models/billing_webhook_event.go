package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata. Rows are a journal only; order state is decided by the purchase
// status transition.
type BillingWebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string         `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrderID         string         `gorm:"type:varchar(36);not null;default:'';index" json:"order_id"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	SignatureValid  bool           `gorm:"default:false;index" json:"signature_valid"`
	ArchiveKey      string         `gorm:"type:varchar(255);not null;default:''" json:"archive_key"`
	ProcessedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingNote  string         `gorm:"type:text" json:"processing_note"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
