package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
)

const defaultProviderTimeout = 15 * time.Second

// Options configures a Service. Prices and currency come from configuration,
// never from the caller.
type Options struct {
	Prices          config.PlanPrices
	Currency        string
	ProviderTimeout time.Duration
	Notifier        Notifier
	Now             func() time.Time
}

// Service is the order ledger and webhook reconciler.
type Service struct {
	repo     Repository
	gateway  payment.Gateway
	prices   config.PlanPrices
	currency string
	timeout  time.Duration
	notifier Notifier
	now      func() time.Time
}

// NewService creates a billing service from an injected repository and gateway.
func NewService(repo Repository, gateway payment.Gateway, opts Options) *Service {
	s := &Service{
		repo:     repo,
		gateway:  gateway,
		prices:   opts.Prices,
		currency: strings.ToLower(opts.Currency),
		timeout:  opts.ProviderTimeout,
		notifier: opts.Notifier,
		now:      opts.Now,
	}
	if s.currency == "" {
		s.currency = "usd"
	}
	if s.timeout <= 0 {
		s.timeout = defaultProviderTimeout
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// NewServiceFromConfig creates a billing service from a GORM DB handle and
// the loaded configuration.
func NewServiceFromConfig(db *gorm.DB, gateway payment.Gateway, cfg *config.Config, notifier Notifier) *Service {
	return NewService(NewRepository(db), gateway, Options{
		Prices:          cfg.Plans,
		Currency:        cfg.Payment.Currency,
		ProviderTimeout: cfg.Payment.Timeout,
		Notifier:        notifier,
	})
}

// Gateway returns the payment provider the service talks to.
func (s *Service) Gateway() payment.Gateway {
	return s.gateway
}

// Plans lists the sellable plans with their configured prices.
func (s *Service) Plans() []PlanOffer {
	offers := make([]PlanOffer, 0, 2)
	for _, plan := range []string{models.PlanTypeMonthly, models.PlanTypeYearly} {
		price, _ := s.prices.Price(plan)
		d, _ := PlanDuration(plan)
		offers = append(offers, PlanOffer{
			PlanType:     plan,
			Amount:       price,
			Currency:     s.currency,
			DurationDays: int(d / (24 * time.Hour)),
		})
	}
	return offers
}

// CreateOrder creates the pending Purchase and inactive Subscription of a new
// order in one transaction and returns its order id.
func (s *Service) CreateOrder(ctx context.Context, userID uint, planType string, amount decimal.Decimal) (string, error) {
	plan, ok := normalizePlan(planType)
	if !ok {
		return "", apperror.Validation("invalid plan type %q", planType)
	}
	if userID == 0 {
		return "", apperror.Validation("user_id is required")
	}
	if !amount.IsPositive() {
		return "", apperror.Validation("amount must be positive")
	}

	orderID := uuid.New().String()
	purchase := &models.Purchase{
		UserID:   userID,
		PlanType: plan,
		Amount:   amount,
		Currency: s.currency,
		Status:   models.PurchaseStatusPending,
		OrderID:  orderID,
	}
	sub := &models.Subscription{
		UserID:   userID,
		PlanType: plan,
		Active:   false,
		OrderID:  orderID,
	}
	if err := s.repo.CreateOrder(ctx, purchase, sub); err != nil {
		log.Errorf("[Billing] Create order failed user_id=%d plan=%s: %v", userID, plan, err)
		return "", apperror.Storage("create order", err)
	}

	log.Infof("[Billing] Created order order_id=%s user_id=%d plan=%s amount=%s", orderID, userID, plan, amount.StringFixed(2))
	return orderID, nil
}

// StartCheckout prices the plan, creates the order and asks the provider for
// a payable order. When the provider fails the records stay pending.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	plan, ok := normalizePlan(req.PlanType)
	if !ok {
		return nil, apperror.Validation("invalid plan type %q", req.PlanType)
	}
	price, ok := s.prices.Price(plan)
	if !ok || !price.IsPositive() {
		return nil, apperror.Validation("no price configured for plan %q", plan)
	}

	orderID, err := s.CreateOrder(ctx, req.UserID, plan, price)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.gateway.CreatePayableOrder(callCtx, payment.PayableOrder{
		OrderID:       orderID,
		UserID:        req.UserID,
		PlanType:      plan,
		Amount:        price,
		Currency:      s.currency,
		CustomerEmail: strings.TrimSpace(req.Email),
	})
	if err != nil {
		log.Errorf("[Billing] Provider %s failed for order_id=%s user_id=%d: %v", s.gateway.Name(), orderID, req.UserID, err)
		return nil, apperror.Provider("create payable order", err)
	}

	if created.ProviderReference != "" {
		if err := s.repo.AttachProviderReference(ctx, orderID, created.ProviderReference); err != nil {
			// The completion webhook carries the order id, so the reference
			// is recovered there.
			log.Warnf("[Billing] Could not store provider reference for order_id=%s: %v", orderID, err)
		}
	}

	return &CheckoutResult{
		OrderID:           orderID,
		PlanType:          plan,
		Amount:            price,
		Currency:          s.currency,
		Provider:          s.gateway.Name(),
		ProviderReference: created.ProviderReference,
		ClientSecret:      created.ClientSecret,
		CheckoutURL:       created.CheckoutURL,
		PublishableKey:    s.gateway.PublishableKey(),
	}, nil
}

// OrderStatus returns the Purchase/Subscription pair of an order.
func (s *Service) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperror.Validation("order_id is required")
	}
	purchase, err := s.repo.FindPurchaseByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.Storage("find purchase", err)
	}
	sub, err := s.repo.FindSubscriptionByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.Storage("find subscription", err)
	}
	if purchase == nil || sub == nil {
		return nil, apperror.UnknownOrder("order_id", orderID)
	}
	return &OrderStatus{OrderID: orderID, Purchase: purchase, Subscription: sub}, nil
}

// ListPurchases returns the user's purchases, newest first.
func (s *Service) ListPurchases(ctx context.Context, userID uint, limit int) ([]models.Purchase, error) {
	purchases, err := s.repo.ListPurchasesByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperror.Storage("list purchases", err)
	}
	return purchases, nil
}

// PurchaseHistory returns the status transitions of one purchase.
func (s *Service) PurchaseHistory(ctx context.Context, purchaseID uint) ([]models.PurchaseEvent, error) {
	events, err := s.repo.ListPurchaseEvents(ctx, purchaseID)
	if err != nil {
		return nil, apperror.Storage("list purchase events", err)
	}
	return events, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, apperror.Validation("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256(in.Payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		OrderID:         in.OrderID,
		Payload:         jsonPayload(in.Payload),
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed with an optional note.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, orderID, note string) error {
	if webhookEventID == 0 {
		return apperror.Validation("webhook_event_id is required")
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, orderID, note)
}

// jsonPayload keeps valid JSON as is and stores anything else as a JSON string.
func jsonPayload(raw []byte) datatypes.JSON {
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}
