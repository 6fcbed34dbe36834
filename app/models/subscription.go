package models

import "time"

// Subscription is the access side of an order. Active subscriptions always
// carry StartDate and EndDate.
type Subscription struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index:idx_subscriptions_user_active,priority:1" json:"user_id"`
	PlanType          string     `gorm:"type:varchar(16);not null" json:"plan_type"`
	Active            bool       `gorm:"not null;default:false;index:idx_subscriptions_user_active,priority:2" json:"active"`
	StartDate         *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate           *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	OrderID           string     `gorm:"type:char(36);not null;uniqueIndex" json:"order_id"`
	ProviderReference string     `gorm:"type:varchar(191);not null;default:''" json:"provider_reference"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the subscription grants access at now. The end
// date itself is still covered.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Active && s.EndDate != nil && !s.EndDate.Before(now)
}
