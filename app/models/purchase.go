package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlanTypeMonthly = "monthly"
	PlanTypeYearly  = "yearly"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase is the payment side of an order. It is created pending and moves
// to completed or failed exactly once.
type Purchase struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	PlanType          string          `gorm:"type:varchar(16);not null" json:"plan_type" validate:"oneof=monthly yearly"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency          string          `gorm:"type:char(3);not null;default:'usd'" json:"currency"`
	Status            string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	OrderID           string          `gorm:"type:char(36);not null;uniqueIndex" json:"order_id"`
	ProviderReference string          `gorm:"type:varchar(191);not null;default:'';index" json:"provider_reference"`
	Events            []PurchaseEvent `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSettled reports whether the purchase left the pending state.
func (p *Purchase) IsSettled() bool {
	return p.Status != PurchaseStatusPending
}

// IsValidPlanType reports whether planType names a sellable plan.
func IsValidPlanType(planType string) bool {
	return planType == PlanTypeMonthly || planType == PlanTypeYearly
}
