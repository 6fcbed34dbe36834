package billing

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
)

// HandleWebhook verifies and applies one provider notification.
//
// A bad signature returns ErrAuthentication before anything is parsed or
// looked up. A completion for an order this service never created returns the
// result together with an ErrUnknownOrder error; callers acknowledge it like
// any other verified delivery. Only storage failures are real errors.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	provider := s.gateway.Name()
	if !s.gateway.VerifySignature(payload, signatureHeader) {
		log.Warnf("[Webhook] Rejected %s delivery: invalid signature (%d bytes)", provider, len(payload))
		return nil, fmt.Errorf("%w: provider=%s", apperror.ErrAuthentication, provider)
	}

	result := &WebhookResult{ProcessedAt: s.now()}

	ev, err := s.gateway.ParseEvent(payload)
	if err != nil {
		log.Warnf("[Webhook] Ignoring unparsable %s delivery: %v", provider, err)
		result.Outcome = OutcomeIgnored
		s.journal(ctx, result, &payment.Event{ProviderType: "unparsable"}, payload, "unparsable payload")
		return result, nil
	}
	result.EventID = ev.ID
	result.EventType = ev.ProviderType
	result.OrderID = ev.OrderID

	var note string
	switch {
	case !ev.Recognized():
		result.Outcome = OutcomeIgnored
		note = "unhandled event type"
		log.Debugf("[Webhook] Ignoring %s event %s (type=%s)", provider, ev.ID, ev.ProviderType)
	case ev.Type == payment.EventPaymentFailed:
		note, err = s.failPayment(ctx, ev, result)
	default:
		note, err = s.completeOrder(ctx, ev, result)
	}

	if err != nil && !apperror.IsUnknownOrder(err) {
		log.Errorf("[Webhook] Processing %s event %s failed order_id=%s event_type=%s: %v",
			provider, ev.ID, result.OrderID, ev.ProviderType, err)
		return nil, err
	}

	s.journal(ctx, result, ev, payload, note)
	return result, err
}

func (s *Service) completeOrder(ctx context.Context, ev *payment.Event, result *WebhookResult) (string, error) {
	purchase, err := s.lookupPurchase(ctx, ev.OrderID, ev.ProviderReference)
	if err != nil {
		return "", err
	}
	if purchase == nil {
		result.Outcome = OutcomeUnknownOrder
		log.Warnf("[Webhook] Completion for unknown order order_id=%q provider_reference=%q event_id=%s",
			ev.OrderID, ev.ProviderReference, ev.ID)
		return "unknown order", apperror.UnknownOrder("order_id", ev.OrderID)
	}
	result.OrderID = purchase.OrderID
	result.UserID = purchase.UserID

	sub, err := s.repo.FindSubscriptionByOrderID(ctx, purchase.OrderID)
	if err != nil {
		return "", apperror.Storage("find subscription", err)
	}
	if sub == nil {
		result.Outcome = OutcomeUnknownOrder
		log.Warnf("[Webhook] Order order_id=%s has no subscription, nothing activated", purchase.OrderID)
		return "subscription missing", apperror.UnknownOrder("order_id", purchase.OrderID)
	}

	if purchase.IsSettled() {
		if purchase.Status != models.PurchaseStatusCompleted {
			// Money may have moved after a failure; never reopen a settled
			// purchase automatically.
			result.Outcome = OutcomeNeedsReview
			log.Errorf("[Webhook] Completion for %s purchase order_id=%s user_id=%d provider_reference=%q event_id=%s needs manual review",
				purchase.Status, purchase.OrderID, purchase.UserID, ev.ProviderReference, ev.ID)
			return "needs review: purchase already " + purchase.Status, nil
		}
		result.Outcome = OutcomeDuplicate
		log.Infof("[Webhook] Duplicate completion order_id=%s event_id=%s", purchase.OrderID, ev.ID)
		return "duplicate", nil
	}

	ref := ev.ProviderReference
	if ref == "" {
		ref = purchase.ProviderReference
	}
	activated := *sub
	if err := Activate(&activated, ref, s.now()); err != nil {
		return "", err
	}

	completed, err := s.repo.CompleteOrder(ctx, CompletionInput{
		PurchaseID:        purchase.ID,
		OrderID:           purchase.OrderID,
		ProviderReference: ref,
		Subscription:      &activated,
		Source:            models.PurchaseEventSourceWebhook,
		ProviderEventID:   ev.ID,
	})
	if err != nil {
		return "", apperror.Storage("complete order", err)
	}
	if !completed {
		result.Outcome = OutcomeDuplicate
		log.Infof("[Webhook] Concurrent completion lost the race order_id=%s event_id=%s", purchase.OrderID, ev.ID)
		return "duplicate", nil
	}

	result.Outcome = OutcomeCompleted
	log.Infof("[Webhook] Order completed order_id=%s user_id=%d plan=%s until=%s",
		purchase.OrderID, purchase.UserID, sub.PlanType, activated.EndDate.Format("2006-01-02"))
	if err := s.notifier.OrderCompleted(ctx, purchase.OrderID, purchase.UserID); err != nil {
		log.Warnf("[Webhook] Notification for order_id=%s not queued: %v", purchase.OrderID, err)
	}
	return "", nil
}

func (s *Service) failPayment(ctx context.Context, ev *payment.Event, result *WebhookResult) (string, error) {
	purchase, err := s.lookupPurchaseByReferenceFirst(ctx, ev.OrderID, ev.ProviderReference)
	if err != nil {
		return "", err
	}
	if purchase == nil {
		result.Outcome = OutcomeUnknownOrder
		log.Warnf("[Webhook] Payment failure for unknown order order_id=%q provider_reference=%q event_id=%s",
			ev.OrderID, ev.ProviderReference, ev.ID)
		return "unknown order", nil
	}
	result.OrderID = purchase.OrderID
	result.UserID = purchase.UserID

	if purchase.IsSettled() {
		result.Outcome = OutcomeDuplicate
		log.Infof("[Webhook] Payment failure for settled purchase order_id=%s status=%s", purchase.OrderID, purchase.Status)
		return "purchase already " + purchase.Status, nil
	}

	failed, err := s.repo.FailPurchase(ctx, FailureInput{
		PurchaseID:      purchase.ID,
		OrderID:         purchase.OrderID,
		Source:          models.PurchaseEventSourceWebhook,
		ProviderEventID: ev.ID,
	})
	if err != nil {
		return "", apperror.Storage("fail purchase", err)
	}
	if !failed {
		result.Outcome = OutcomeDuplicate
		return "duplicate", nil
	}

	result.Outcome = OutcomeFailed
	log.Infof("[Webhook] Payment failed order_id=%s user_id=%d", purchase.OrderID, purchase.UserID)
	if err := s.notifier.PaymentFailed(ctx, purchase.OrderID, purchase.UserID); err != nil {
		log.Warnf("[Webhook] Notification for order_id=%s not queued: %v", purchase.OrderID, err)
	}
	return "", nil
}

// lookupPurchase prefers the order id and falls back to the provider reference.
func (s *Service) lookupPurchase(ctx context.Context, orderID, ref string) (*models.Purchase, error) {
	if orderID != "" {
		p, err := s.repo.FindPurchaseByOrderID(ctx, orderID)
		if err != nil || p != nil {
			return p, wrapStorage("find purchase", err)
		}
	}
	p, err := s.repo.FindPurchaseByProviderReference(ctx, ref)
	return p, wrapStorage("find purchase", err)
}

// lookupPurchaseByReferenceFirst is the failure path order: provider
// reference, then order id.
func (s *Service) lookupPurchaseByReferenceFirst(ctx context.Context, orderID, ref string) (*models.Purchase, error) {
	if ref != "" {
		p, err := s.repo.FindPurchaseByProviderReference(ctx, ref)
		if err != nil || p != nil {
			return p, wrapStorage("find purchase", err)
		}
	}
	if orderID == "" {
		return nil, nil
	}
	p, err := s.repo.FindPurchaseByOrderID(ctx, orderID)
	return p, wrapStorage("find purchase", err)
}

// journal records the delivery. Journal failures are logged only; the state
// transition already happened or was not needed.
func (s *Service) journal(ctx context.Context, result *WebhookResult, ev *payment.Event, payload []byte, note string) {
	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        s.gateway.Name(),
		ProviderEventID: ev.ID,
		EventType:       ev.ProviderType,
		OrderID:         result.OrderID,
		Payload:         payload,
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] Could not journal event %s order_id=%s: %v", ev.ID, result.OrderID, err)
		return
	}
	result.WebhookEventID = stored.ID
	if err := s.MarkWebhookProcessed(ctx, stored.ID, result.OrderID, note); err != nil {
		log.Errorf("[Webhook] Could not mark event %d processed: %v", stored.ID, err)
	}
	if created {
		if err := s.notifier.WebhookRecorded(ctx, stored.ID); err != nil {
			log.Warnf("[Webhook] Archive of event %d not queued: %v", stored.ID, err)
		}
	}
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperror.Storage(op, err)
}
