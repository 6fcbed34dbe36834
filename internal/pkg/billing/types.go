package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/MoodTunes/app/models"
)

// CheckoutRequest starts a purchase for one plan.
type CheckoutRequest struct {
	UserID   uint
	PlanType string
	Email    string
}

// CheckoutResult carries what the client needs to complete the payment.
type CheckoutResult struct {
	OrderID           string          `json:"order_id"`
	PlanType          string          `json:"plan_type"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference"`
	ClientSecret      string          `json:"client_secret,omitempty"`
	CheckoutURL       string          `json:"checkout_url,omitempty"`
	PublishableKey    string          `json:"publishable_key,omitempty"`
}

// PlanOffer describes one sellable plan.
type PlanOffer struct {
	PlanType     string          `json:"plan_type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
}

// OrderStatus is the Purchase/Subscription pair of one order.
type OrderStatus struct {
	OrderID      string               `json:"order_id"`
	Purchase     *models.Purchase     `json:"purchase"`
	Subscription *models.Subscription `json:"subscription"`
}

// CompletionInput is the state written when an order completes. Subscription
// already carries the activated dates.
type CompletionInput struct {
	PurchaseID        uint
	OrderID           string
	ProviderReference string
	Subscription      *models.Subscription
	Source            string
	ProviderEventID   string
}

// FailureInput is the state written when a payment fails.
type FailureInput struct {
	PurchaseID      uint
	OrderID         string
	Source          string
	ProviderEventID string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	OrderID         string
	Payload         []byte
	SignatureValid  bool
}

// WebhookOutcome names what a delivery did.
type WebhookOutcome string

const (
	OutcomeCompleted    WebhookOutcome = "completed"
	OutcomeFailed       WebhookOutcome = "failed"
	OutcomeDuplicate    WebhookOutcome = "duplicate"
	OutcomeUnknownOrder WebhookOutcome = "unknown_order"
	OutcomeIgnored      WebhookOutcome = "ignored"
	// OutcomeNeedsReview marks a completion that arrived for a purchase
	// already settled as failed or refunded. It changes nothing.
	OutcomeNeedsReview WebhookOutcome = "needs_review"
)

// WebhookResult summarizes one verified delivery.
type WebhookResult struct {
	Outcome        WebhookOutcome `json:"outcome"`
	EventID        string         `json:"event_id,omitempty"`
	EventType      string         `json:"event_type,omitempty"`
	OrderID        string         `json:"order_id,omitempty"`
	UserID         uint           `json:"-"`
	WebhookEventID uint           `json:"-"`
	ProcessedAt    time.Time      `json:"processed_at"`
}
