package billing_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing/billingtest"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/payment"
)

// fakeGateway signs like the sandbox provider and lets tests control order
// creation.
type fakeGateway struct {
	*payment.SandboxGateway
	createErr error
	block     bool
	calls     int32
	mu        sync.Mutex
	last      payment.PayableOrder
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{SandboxGateway: payment.NewSandboxGateway("whsec_test", "http://localhost:4000")}
}

func (g *fakeGateway) CreatePayableOrder(ctx context.Context, order payment.PayableOrder) (*payment.CreatedOrder, error) {
	atomic.AddInt32(&g.calls, 1)
	g.mu.Lock()
	g.last = order
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.CreatedOrder{ProviderReference: "pi_" + order.OrderID, ClientSecret: "pi_" + order.OrderID + "_secret"}, nil
}

func (g *fakeGateway) event(t *testing.T, id, typ, orderID, ref string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(payment.SandboxEvent{
		ID:   id,
		Type: typ,
		Data: payment.SandboxEventData{OrderID: orderID, ProviderReference: ref},
	})
	require.NoError(t, err)
	return payload, g.Sign(payload)
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	recorded  []uint
	err       error
}

func (n *recordingNotifier) OrderCompleted(_ context.Context, orderID string, _ uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, orderID)
	return n.err
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, orderID string, _ uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, orderID)
	return n.err
}

func (n *recordingNotifier) WebhookRecorded(_ context.Context, id uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recorded = append(n.recorded, id)
	return n.err
}

var testPrices = config.PlanPrices{
	Monthly: decimal.RequireFromString("20.00"),
	Yearly:  decimal.RequireFromString("100.00"),
}

type fixture struct {
	svc      *billing.Service
	repo     *billingtest.Repository
	gateway  *fakeGateway
	notifier *recordingNotifier
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:     billingtest.NewRepository(),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = billing.NewService(f.repo, f.gateway, billing.Options{
		Prices:          testPrices,
		Currency:        "usd",
		ProviderTimeout: 50 * time.Millisecond,
		Notifier:        f.notifier,
		Now:             func() time.Time { return f.now },
	})
	return f
}
