package jobqueue

import (
	"context"
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(to, subject, body string) error
}

// UserLookup loads the recipient of a customer email.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// OrderLookup loads the order an email is about.
type OrderLookup interface {
	OrderStatus(ctx context.Context, orderID string) (*billing.OrderStatus, error)
}

// WebhookStore reads journaled deliveries and records where they were archived.
type WebhookStore interface {
	GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error)
	SetWebhookArchiveKey(ctx context.Context, id uint, key string) error
}

// Uploader writes one journaled delivery to object storage.
type Uploader interface {
	PutWebhookEvent(ctx context.Context, ev *models.BillingWebhookEvent) (string, error)
}

// EmailProcessor sends the customer emails for order outcomes.
type EmailProcessor struct {
	mailer Mailer
	users  UserLookup
	orders OrderLookup
}

func NewEmailProcessor(mailer Mailer, users UserLookup, orders OrderLookup) *EmailProcessor {
	return &EmailProcessor{mailer: mailer, users: users, orders: orders}
}

// SubscriptionActivated handles JobTypeSubscriptionActivatedEmail.
func (p *EmailProcessor) SubscriptionActivated(ctx context.Context, job *Job) error {
	payload, st, user, err := p.load(ctx, job)
	if err != nil {
		return err
	}
	until := "-"
	if st.Subscription.EndDate != nil {
		until = st.Subscription.EndDate.UTC().Format("January 2, 2006")
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your %s plan is active until %s. Enjoy unlimited mood searches.</p><p>Order %s</p>",
		html.EscapeString(user.Name), html.EscapeString(st.Subscription.PlanType), until, html.EscapeString(payload.OrderID),
	)
	return p.mailer.Send(user.Email, "Your MoodTunes subscription is active", body)
}

// PaymentFailed handles JobTypePaymentFailedEmail.
func (p *EmailProcessor) PaymentFailed(ctx context.Context, job *Job) error {
	payload, st, user, err := p.load(ctx, job)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>the payment for your %s plan (%s %s) did not go through. No access was granted and you can try again at any time.</p><p>Order %s</p>",
		html.EscapeString(user.Name), html.EscapeString(st.Purchase.PlanType),
		st.Purchase.Amount.StringFixed(2), html.EscapeString(st.Purchase.Currency), html.EscapeString(payload.OrderID),
	)
	return p.mailer.Send(user.Email, "Your MoodTunes payment failed", body)
}

func (p *EmailProcessor) load(ctx context.Context, job *Job) (*OrderEmailJobPayload, *billing.OrderStatus, *models.User, error) {
	payload, err := OrderEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid payload: %w", err)
	}
	st, err := p.orders.OrderStatus(ctx, payload.OrderID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}
	user, err := p.users.GetByID(st.Purchase.UserID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load user %d: %w", st.Purchase.UserID, err)
	}
	return payload, st, user, nil
}

// ArchiveProcessor copies journaled webhook payloads to object storage.
type ArchiveProcessor struct {
	store    WebhookStore
	uploader Uploader
}

func NewArchiveProcessor(store WebhookStore, uploader Uploader) *ArchiveProcessor {
	return &ArchiveProcessor{store: store, uploader: uploader}
}

// Process handles JobTypeArchiveWebhookPayload. Already archived events are
// skipped.
func (p *ArchiveProcessor) Process(ctx context.Context, job *Job) error {
	payload, err := ArchiveWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	ev, err := p.store.GetWebhookEvent(ctx, payload.WebhookEventID)
	if err != nil {
		return fmt.Errorf("load webhook event %d: %w", payload.WebhookEventID, err)
	}
	if ev == nil {
		log.Warnf("[JobQueue] Webhook event %d vanished before archiving", payload.WebhookEventID)
		return nil
	}
	if ev.ArchiveKey != "" {
		return nil
	}
	key, err := p.uploader.PutWebhookEvent(ctx, ev)
	if err != nil {
		return err
	}
	return p.store.SetWebhookArchiveKey(ctx, ev.ID, key)
}
