package models

import "time"

const (
	PurchaseEventSourceCheckout = "checkout"
	PurchaseEventSourceWebhook  = "webhook"
)

// PurchaseEvent is one row of the purchase status history.
type PurchaseEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PurchaseID      uint      `gorm:"not null;index" json:"purchase_id"`
	OrderID         string    `gorm:"type:char(36);not null;index" json:"order_id"`
	FromStatus      string    `gorm:"type:varchar(16);not null;default:''" json:"from_status"`
	ToStatus        string    `gorm:"type:varchar(16);not null" json:"to_status"`
	Source          string    `gorm:"type:varchar(32);not null" json:"source"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;default:''" json:"provider_event_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
