package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeGateway implements Gateway with PaymentIntents or hosted Checkout
// Sessions, depending on the configured checkout mode.
type StripeGateway struct {
	sc             *client.API
	mode           string
	currency       string
	publishableKey string
	webhookSecret  string
	siteURL        string
}

// NewStripeGateway builds the gateway. backends may be nil to use the live
// Stripe API.
func NewStripeGateway(cfg config.PaymentConfig, siteURL string, backends *stripe.Backends) *StripeGateway {
	mode := cfg.StripeCheckoutMode
	if mode == "" {
		mode = config.CheckoutModePaymentIntent
	}
	return &StripeGateway{
		sc:             client.New(cfg.StripeSecretKey, backends),
		mode:           mode,
		currency:       cfg.Currency,
		publishableKey: cfg.StripePublishableKey,
		webhookSecret:  cfg.StripeWebhookSecret,
		siteURL:        strings.TrimRight(siteURL, "/"),
	}
}

func (g *StripeGateway) Name() string {
	return config.ProviderStripe
}

func (g *StripeGateway) SignatureHeader() string {
	return stripeSignatureHeader
}

func (g *StripeGateway) PublishableKey() string {
	return g.publishableKey
}

// CreatePayableOrder creates the Stripe object the client pays against.
func (g *StripeGateway) CreatePayableOrder(ctx context.Context, order PayableOrder) (*CreatedOrder, error) {
	currency := order.Currency
	if currency == "" {
		currency = g.currency
	}
	if g.mode == config.CheckoutModeCheckoutSession {
		return g.createCheckoutSession(ctx, order, currency)
	}
	return g.createPaymentIntent(ctx, order, currency)
}

func (g *StripeGateway) createPaymentIntent(ctx context.Context, order PayableOrder, currency string) (*CreatedOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(order.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if order.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(order.CustomerEmail)
	}
	for k, v := range order.Metadata() {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey("pi_" + order.OrderID)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	log.Infof("[Stripe] Created payment intent %s for order_id=%s", pi.ID, order.OrderID)
	return &CreatedOrder{ProviderReference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) createCheckoutSession(ctx context.Context, order PayableOrder, currency string) (*CreatedOrder, error) {
	meta := order.Metadata()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(order.OrderID),
		SuccessURL:        stripe.String(g.siteURL + "/checkout/success/?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(g.siteURL + "/checkout/cancel/"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(MinorUnits(order.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("MoodTunes %s plan", order.PlanType)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if order.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(order.CustomerEmail)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey("cs_" + order.OrderID)

	cs, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	log.Infof("[Stripe] Created checkout session %s for order_id=%s", cs.ID, order.OrderID)
	return &CreatedOrder{ProviderReference: cs.ID, CheckoutURL: cs.URL}, nil
}

// VerifySignature checks the Stripe-Signature header over the raw payload,
// including the timestamp tolerance.
func (g *StripeGateway) VerifySignature(payload []byte, header string) bool {
	if strings.TrimSpace(header) == "" || g.webhookSecret == "" {
		return false
	}
	return webhook.ValidatePayload(payload, header, g.webhookSecret) == nil
}

// ParseEvent maps Stripe event types onto the normalized ones.
func (g *StripeGateway) ParseEvent(payload []byte) (*Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}
	ev := &Event{ID: se.ID, ProviderType: string(se.Type)}
	if se.Data == nil {
		return ev, nil
	}

	switch se.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(se.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.OrderID = cs.Metadata[MetadataOrderID]
		if ev.OrderID == "" {
			ev.OrderID = cs.ClientReferenceID
		}
		ev.ProviderReference = cs.ID
		if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
			ev.ProviderReference = cs.PaymentIntent.ID
		}
		ev.Type = checkoutSessionEventType(se.Type, cs.PaymentStatus)
		if ev.Type == "" {
			log.Infof("[Stripe] Checkout session %s completed with payment_status=%s, waiting for async payment",
				cs.ID, cs.PaymentStatus)
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.Type = EventOrderCompleted
		if se.Type == "payment_intent.payment_failed" {
			ev.Type = EventPaymentFailed
		}
		ev.OrderID = pi.Metadata[MetadataOrderID]
		ev.ProviderReference = pi.ID
	}
	return ev, nil
}

// checkoutSessionEventType maps a checkout session event. A completed session
// whose payment is still processing (delayed methods such as bank debits)
// activates nothing; the async_payment_* follow-up settles it.
func checkoutSessionEventType(eventType stripe.EventType, status stripe.CheckoutSessionPaymentStatus) string {
	switch eventType {
	case "checkout.session.async_payment_succeeded":
		return EventOrderCompleted
	case "checkout.session.async_payment_failed":
		return EventPaymentFailed
	}
	if status == stripe.CheckoutSessionPaymentStatusPaid {
		return EventOrderCompleted
	}
	return ""
}
