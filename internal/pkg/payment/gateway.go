// Package payment wraps the external payment provider behind Gateway. The
// billing core creates payable orders through it and hands it raw webhook
// bytes for verification and parsing.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

// Normalized event types understood by the reconciler.
const (
	EventOrderCompleted = "order_completed"
	EventPaymentFailed  = "payment_failed"
)

// Metadata keys attached to every payable order.
const (
	MetadataOrderID  = "order_id"
	MetadataPlanType = "plan_type"
	MetadataUserID   = "user_id"
)

// PayableOrder is what the provider is asked to charge.
type PayableOrder struct {
	OrderID       string
	UserID        uint
	PlanType      string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
}

// Metadata returns the correlation metadata sent with the order.
func (o PayableOrder) Metadata() map[string]string {
	return map[string]string{
		MetadataOrderID:  o.OrderID,
		MetadataPlanType: o.PlanType,
		MetadataUserID:   fmt.Sprintf("%d", o.UserID),
	}
}

// CreatedOrder is the provider's answer. Exactly one of ClientSecret and
// CheckoutURL is set, depending on the checkout flow.
type CreatedOrder struct {
	ProviderReference string
	ClientSecret      string
	CheckoutURL       string
}

// Event is a verified provider notification reduced to what reconciliation
// needs. Type is empty for provider events the service does not handle.
type Event struct {
	ID                string
	Type              string
	ProviderType      string
	OrderID           string
	ProviderReference string
}

// Recognized reports whether the event drives a state transition.
func (e *Event) Recognized() bool {
	return e.Type == EventOrderCompleted || e.Type == EventPaymentFailed
}

// Gateway is the payment provider boundary.
type Gateway interface {
	// Name is the provider key used in routes and the webhook journal.
	Name() string
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// PublishableKey is handed to clients that confirm payments themselves.
	PublishableKey() string
	CreatePayableOrder(ctx context.Context, order PayableOrder) (*CreatedOrder, error)
	VerifySignature(payload []byte, header string) bool
	ParseEvent(payload []byte) (*Event, error)
}

// NewGatewayFromConfig returns the configured provider.
func NewGatewayFromConfig(cfg *config.Config) (Gateway, error) {
	switch cfg.Payment.Provider {
	case config.ProviderStripe:
		return NewStripeGateway(cfg.Payment, cfg.SiteURL, nil), nil
	case config.ProviderSandbox:
		return NewSandboxGateway(cfg.Payment.SandboxWebhookSecret, cfg.SiteURL), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}

// MinorUnits converts an amount in major units to the provider's integer
// minor units, e.g. 20.00 -> 2000.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
