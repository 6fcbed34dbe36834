package billing

import "context"

// Notifier receives side effects of reconciliation. Implementations must not
// block; failures are logged by the caller and never change the webhook
// response.
type Notifier interface {
	OrderCompleted(ctx context.Context, orderID string, userID uint) error
	PaymentFailed(ctx context.Context, orderID string, userID uint) error
	WebhookRecorded(ctx context.Context, webhookEventID uint) error
}

type noopNotifier struct{}

func (noopNotifier) OrderCompleted(context.Context, string, uint) error { return nil }
func (noopNotifier) PaymentFailed(context.Context, string, uint) error  { return nil }
func (noopNotifier) WebhookRecorded(context.Context, uint) error        { return nil }
