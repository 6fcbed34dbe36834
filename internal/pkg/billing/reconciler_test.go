package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/app/repository/repositorytest"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/entitlements"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/quota"
)

func newOrder(t *testing.T, f *fixture, userID uint, plan string) string {
	t.Helper()
	price, _ := testPrices.Price(plan)
	orderID, err := f.svc.CreateOrder(context.Background(), userID, plan, price)
	require.NoError(t, err)
	return orderID
}

func TestHandleWebhook_CompletesOrder(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 9, "monthly")
	payload, sig := f.gateway.event(t, "evt_1", payment.EventOrderCompleted, orderID, "pi_abc")

	res, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCompleted, res.Outcome)
	assert.Equal(t, orderID, res.OrderID)
	assert.Equal(t, uint(9), res.UserID)

	p := f.repo.Purchase(orderID)
	assert.Equal(t, models.PurchaseStatusCompleted, p.Status)
	assert.Equal(t, "pi_abc", p.ProviderReference)

	s := f.repo.Subscription(orderID)
	require.True(t, s.Active)
	require.NotNil(t, s.StartDate)
	require.NotNil(t, s.EndDate)
	assert.True(t, s.StartDate.Equal(f.now))
	assert.True(t, s.EndDate.Equal(f.now.Add(30*24*time.Hour)))
	assert.Equal(t, "pi_abc", s.ProviderReference)

	assert.Equal(t, []string{orderID}, f.notifier.completed)
	assert.Len(t, f.notifier.recorded, 1)
	assert.Equal(t, 1, f.repo.EventsTo(orderID, models.PurchaseStatusCompleted))
}

func TestHandleWebhook_YearlyPlanRunsForAYear(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 9, "yearly")
	payload, sig := f.gateway.event(t, "evt_y", payment.EventOrderCompleted, orderID, "")

	_, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	s := f.repo.Subscription(orderID)
	assert.True(t, s.EndDate.Equal(f.now.Add(365*24*time.Hour)))
}

func TestHandleWebhook_InvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 9, "monthly")
	payload, sig := f.gateway.event(t, "evt_1", payment.EventOrderCompleted, orderID, "pi_abc")
	before := f.repo.LookupCount()

	for _, header := range []string{"", "deadbeef", sig + "00"} {
		res, err := f.svc.HandleWebhook(context.Background(), payload, header)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, apperror.ErrAuthentication))
	}

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err := f.svc.HandleWebhook(context.Background(), tampered, sig)
	assert.True(t, errors.Is(err, apperror.ErrAuthentication))

	assert.Equal(t, before, f.repo.LookupCount())
	assert.Equal(t, models.PurchaseStatusPending, f.repo.Purchase(orderID).Status)
	assert.False(t, f.repo.Subscription(orderID).Active)
	assert.Empty(t, f.repo.WebhookEvents())
}

func TestHandleWebhook_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 9, "monthly")
	payload, sig := f.gateway.event(t, "evt_1", payment.EventOrderCompleted, orderID, "pi_abc")

	_, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	first := f.repo.Subscription(orderID)

	f.now = f.now.Add(2 * time.Hour)
	res, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeDuplicate, res.Outcome)

	second := f.repo.Subscription(orderID)
	assert.True(t, first.EndDate.Equal(*second.EndDate))
	assert.Equal(t, 1, f.repo.Activations())
	assert.Equal(t, 1, f.repo.EventsTo(orderID, models.PurchaseStatusCompleted))
	assert.Len(t, f.notifier.completed, 1)
	assert.Len(t, f.notifier.recorded, 1)
}

func TestHandleWebhook_ConcurrentDeliveriesActivateOnce(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 9, "monthly")

	const deliveries = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[billing.WebhookOutcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		// distinct provider event ids, as with a retried checkout and intent event
		payload, sig := f.gateway.event(t, "evt_"+string(rune('a'+i)), payment.EventOrderCompleted, orderID, "pi_abc")
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.HandleWebhook(context.Background(), payload, sig)
			assert.NoError(t, err)
			if res != nil {
				mu.Lock()
				outcomes[res.Outcome]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[billing.OutcomeCompleted])
	assert.Equal(t, deliveries-1, outcomes[billing.OutcomeDuplicate])
	assert.Equal(t, 1, f.repo.Activations())
	assert.Equal(t, 1, f.repo.EventsTo(orderID, models.PurchaseStatusCompleted))
}

func TestHandleWebhook_UnknownOrderCompletion(t *testing.T) {
	f := newFixture()
	payload, sig := f.gateway.event(t, "evt_9", payment.EventOrderCompleted, "00000000-0000-4000-8000-000000000000", "pi_nobody")

	res, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.True(t, apperror.IsUnknownOrder(err))
	require.NotNil(t, res)
	assert.Equal(t, billing.OutcomeUnknownOrder, res.Outcome)
	assert.NotZero(t, res.WebhookEventID)
	assert.Empty(t, f.repo.Purchases())
	assert.Zero(t, f.repo.Activations())
	assert.Empty(t, f.notifier.completed)
}

func TestHandleWebhook_CompletionFoundByReference(t *testing.T) {
	f := newFixture()
	res, err := f.svc.StartCheckout(context.Background(), billing.CheckoutRequest{UserID: 2, PlanType: "monthly"})
	require.NoError(t, err)
	payload, sig := f.gateway.event(t, "evt_ref", payment.EventOrderCompleted, "", res.ProviderReference)

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCompleted, out.Outcome)
	assert.Equal(t, res.OrderID, out.OrderID)
	assert.True(t, f.repo.Subscription(res.OrderID).Active)
}

func TestHandleWebhook_PaymentFailedByReference(t *testing.T) {
	f := newFixture()
	res, err := f.svc.StartCheckout(context.Background(), billing.CheckoutRequest{UserID: 2, PlanType: "monthly"})
	require.NoError(t, err)
	payload, sig := f.gateway.event(t, "evt_f", payment.EventPaymentFailed, "", res.ProviderReference)

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeFailed, out.Outcome)
	assert.Equal(t, models.PurchaseStatusFailed, f.repo.Purchase(res.OrderID).Status)
	assert.False(t, f.repo.Subscription(res.OrderID).Active)
	assert.Equal(t, []string{res.OrderID}, f.notifier.failed)
}

func TestHandleWebhook_PaymentFailedByOrderID(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 2, "yearly")
	payload, sig := f.gateway.event(t, "evt_f", payment.EventPaymentFailed, orderID, "pi_unseen")

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeFailed, out.Outcome)
	assert.Equal(t, models.PurchaseStatusFailed, f.repo.Purchase(orderID).Status)
	assert.Equal(t, 1, f.repo.EventsTo(orderID, models.PurchaseStatusFailed))
}

func TestHandleWebhook_PaymentFailedUnknownIsAcknowledged(t *testing.T) {
	f := newFixture()
	payload, sig := f.gateway.event(t, "evt_f", payment.EventPaymentFailed, "", "pi_nobody")

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeUnknownOrder, out.Outcome)
	assert.Empty(t, f.notifier.failed)
}

func TestHandleWebhook_FailureAfterCompletionKeepsAccess(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 2, "monthly")
	ok, sig := f.gateway.event(t, "evt_ok", payment.EventOrderCompleted, orderID, "pi_1")
	_, err := f.svc.HandleWebhook(context.Background(), ok, sig)
	require.NoError(t, err)

	failed, fsig := f.gateway.event(t, "evt_late", payment.EventPaymentFailed, orderID, "pi_1")
	out, err := f.svc.HandleWebhook(context.Background(), failed, fsig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeDuplicate, out.Outcome)
	assert.Equal(t, models.PurchaseStatusCompleted, f.repo.Purchase(orderID).Status)
	assert.True(t, f.repo.Subscription(orderID).Active)
}

func TestHandleWebhook_CompletionAfterFailureNotApplied(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 2, "monthly")
	failed, fsig := f.gateway.event(t, "evt_fail", payment.EventPaymentFailed, orderID, "")
	_, err := f.svc.HandleWebhook(context.Background(), failed, fsig)
	require.NoError(t, err)

	ok, sig := f.gateway.event(t, "evt_ok", payment.EventOrderCompleted, orderID, "pi_1")
	out, err := f.svc.HandleWebhook(context.Background(), ok, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeNeedsReview, out.Outcome)
	assert.Equal(t, models.PurchaseStatusFailed, f.repo.Purchase(orderID).Status)
	assert.False(t, f.repo.Subscription(orderID).Active)

	stored, err := f.repo.GetWebhookEvent(context.Background(), out.WebhookEventID)
	require.NoError(t, err)
	assert.Equal(t, "needs review: purchase already failed", stored.ProcessingNote)
}

func TestHandleWebhook_UnhandledEventIgnored(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 2, "monthly")
	payload, sig := f.gateway.event(t, "evt_x", "customer.created", orderID, "")

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, out.Outcome)
	assert.Equal(t, models.PurchaseStatusPending, f.repo.Purchase(orderID).Status)
	assert.Len(t, f.repo.WebhookEvents(), 1)
}

func TestHandleWebhook_UnparsablePayloadIgnored(t *testing.T) {
	f := newFixture()
	payload := []byte("not json at all")

	out, err := f.svc.HandleWebhook(context.Background(), payload, f.gateway.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeIgnored, out.Outcome)
	require.Len(t, f.repo.WebhookEvents(), 1)
	for _, w := range f.repo.WebhookEvents() {
		assert.Equal(t, "unparsable payload", w.ProcessingNote)
		assert.JSONEq(t, `"not json at all"`, string(w.Payload))
	}
}

func TestHandleWebhook_StorageFailureIsRetryable(t *testing.T) {
	f := newFixture()
	orderID := newOrder(t, f, 2, "monthly")
	payload, sig := f.gateway.event(t, "evt_1", payment.EventOrderCompleted, orderID, "pi_1")
	f.repo.SetFail(true)

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, apperror.ErrStorage))
	assert.Equal(t, 500, apperror.HTTPStatus(err))

	f.repo.SetFail(false)
	out, err = f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCompleted, out.Outcome)
}

func TestHandleWebhook_NotifierErrorsDoNotFailDelivery(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("queue down")
	orderID := newOrder(t, f, 2, "monthly")
	payload, sig := f.gateway.event(t, "evt_1", payment.EventOrderCompleted, orderID, "pi_1")

	out, err := f.svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCompleted, out.Outcome)
}

// A free user buys a monthly plan and is no longer held to the daily limit.
func TestCheckoutToUnlimitedAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	usage := repositorytest.NewUsageProfiles()
	tracker := quota.NewTracker(usage, time.UTC).WithClock(func() time.Time { return f.now })
	resolver := entitlements.NewResolver(tracker, f.repo, 10)

	for i := 0; i < 10; i++ {
		ok, _, err := resolver.Consume(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _, err := resolver.Consume(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	checkout, err := f.svc.StartCheckout(ctx, billing.CheckoutRequest{UserID: 1, PlanType: "monthly"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(checkout.Amount))

	payload, sig := f.gateway.event(t, "evt_paid", payment.EventOrderCompleted, checkout.OrderID, checkout.ProviderReference)
	out, err := f.svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCompleted, out.Outcome)

	sub := f.repo.Subscription(checkout.OrderID)
	assert.True(t, sub.EndDate.Equal(f.now.Add(30*24*time.Hour)))

	for i := 0; i < 50; i++ {
		ok, _, err := resolver.Consume(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	can, err := resolver.CanUse(ctx, 1)
	require.NoError(t, err)
	assert.True(t, can)

	st, err := resolver.Status(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.Unlimited)
	assert.Equal(t, entitlements.PlanMonthly, st.Plan)
}
