// Package billingtest provides an in-memory billing repository for tests of
// the billing service and the HTTP layer.
package billingtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/app/repository"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/billing"
)

// ErrDown is returned by a repository configured to fail.
var ErrDown = errors.New("database is down")

var (
	_ billing.Repository                = (*Repository)(nil)
	_ repository.SubscriptionRepository = (*Repository)(nil)
)

// Repository is an in-memory billing.Repository. Conditional updates are
// applied under one mutex with the same pending-only rules as the SQL.
type Repository struct {
	mu          sync.Mutex
	nextID      uint
	purchases   map[string]*models.Purchase
	subs        map[string]*models.Subscription
	events      []models.PurchaseEvent
	webhooks    map[string]*models.BillingWebhookEvent
	lookups     int
	activations int
	fail        bool
}

func NewRepository() *Repository {
	return &Repository{
		purchases: map[string]*models.Purchase{},
		subs:      map[string]*models.Subscription{},
		webhooks:  map[string]*models.BillingWebhookEvent{},
	}
}

func (r *Repository) id() uint {
	r.nextID++
	return r.nextID
}

func (r *Repository) CreateOrder(_ context.Context, purchase *models.Purchase, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrDown
	}
	purchase.ID = r.id()
	sub.ID = r.id()
	p := *purchase
	s := *sub
	r.purchases[purchase.OrderID] = &p
	r.subs[sub.OrderID] = &s
	r.events = append(r.events, models.PurchaseEvent{PurchaseID: p.ID, OrderID: p.OrderID, ToStatus: models.PurchaseStatusPending, Source: models.PurchaseEventSourceCheckout})
	return nil
}

func (r *Repository) AttachProviderReference(_ context.Context, orderID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.purchases[orderID]; ok && p.ProviderReference == "" {
		p.ProviderReference = ref
	}
	if s, ok := r.subs[orderID]; ok && s.ProviderReference == "" {
		s.ProviderReference = ref
	}
	return nil
}

func (r *Repository) FindPurchaseByOrderID(_ context.Context, orderID string) (*models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.fail {
		return nil, ErrDown
	}
	if p, ok := r.purchases[orderID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *Repository) FindPurchaseByProviderReference(_ context.Context, ref string) (*models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.fail {
		return nil, ErrDown
	}
	if ref == "" {
		return nil, nil
	}
	for _, p := range r.purchases {
		if p.ProviderReference == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Repository) FindSubscriptionByOrderID(_ context.Context, orderID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.fail {
		return nil, ErrDown
	}
	if s, ok := r.subs[orderID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *Repository) ListPurchasesByUser(_ context.Context, userID uint, limit int) ([]models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) CompleteOrder(_ context.Context, in billing.CompletionInput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, ErrDown
	}
	p := r.purchases[in.OrderID]
	if p == nil || p.ID != in.PurchaseID || p.Status != models.PurchaseStatusPending {
		return false, nil
	}
	p.Status = models.PurchaseStatusCompleted
	p.ProviderReference = in.ProviderReference
	s := r.subs[in.OrderID]
	s.Active = true
	s.StartDate = in.Subscription.StartDate
	s.EndDate = in.Subscription.EndDate
	s.ProviderReference = in.Subscription.ProviderReference
	r.activations++
	r.events = append(r.events, models.PurchaseEvent{PurchaseID: p.ID, OrderID: p.OrderID, FromStatus: models.PurchaseStatusPending, ToStatus: models.PurchaseStatusCompleted, Source: in.Source, ProviderEventID: in.ProviderEventID})
	return true, nil
}

func (r *Repository) FailPurchase(_ context.Context, in billing.FailureInput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, ErrDown
	}
	p := r.purchases[in.OrderID]
	if p == nil || p.Status != models.PurchaseStatusPending {
		return false, nil
	}
	p.Status = models.PurchaseStatusFailed
	r.events = append(r.events, models.PurchaseEvent{PurchaseID: p.ID, OrderID: p.OrderID, FromStatus: models.PurchaseStatusPending, ToStatus: models.PurchaseStatusFailed, Source: in.Source, ProviderEventID: in.ProviderEventID})
	return true, nil
}

func (r *Repository) ListPurchaseEvents(_ context.Context, purchaseID uint) ([]models.PurchaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PurchaseEvent
	for _, e := range r.events {
		if e.PurchaseID == purchaseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repository) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, nil, ErrDown
	}
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.webhooks[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	event.ID = r.id()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	r.webhooks[key] = &cp
	return true, event, nil
}

func (r *Repository) MarkWebhookProcessed(_ context.Context, id uint, orderID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.webhooks {
		if w.ID == id {
			now := time.Now()
			w.ProcessedAt = &now
			w.ProcessingNote = note
			if orderID != "" {
				w.OrderID = orderID
			}
		}
	}
	return nil
}

func (r *Repository) GetWebhookEvent(_ context.Context, id uint) (*models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.webhooks {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Repository) SetWebhookArchiveKey(_ context.Context, id uint, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.webhooks {
		if w.ID == id {
			w.ArchiveKey = key
		}
	}
	return nil
}

func (r *Repository) ListUnarchivedWebhookEvents(_ context.Context, olderThan time.Time, afterID uint, limit int) ([]models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BillingWebhookEvent
	for _, w := range r.webhooks {
		if w.ID > afterID && w.ArchiveKey == "" && w.CreatedAt.Before(olderThan) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasActive and FindCurrent let the same store back an entitlement resolver.
func (r *Repository) HasActive(ctx context.Context, userID uint, now time.Time) (bool, error) {
	s, err := r.FindCurrent(ctx, userID, now)
	return s != nil, err
}

func (r *Repository) FindCurrent(_ context.Context, userID uint, now time.Time) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == userID && s.IsCurrent(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// Purchase returns a copy of the purchase of an order.
func (r *Repository) Purchase(orderID string) models.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.purchases[orderID]
}

// Subscription returns a copy of the subscription of an order.
func (r *Repository) Subscription(orderID string) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.subs[orderID]
}

// EventsTo counts purchase events of an order that moved to status.
func (r *Repository) EventsTo(orderID, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.OrderID == orderID && e.ToStatus == status {
			n++
		}
	}
	return n
}

// LookupCount counts purchase and subscription reads.
func (r *Repository) LookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// SetFail makes every subsequent call fail with ErrDown.
func (r *Repository) SetFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// Activations counts successful CompleteOrder calls.
func (r *Repository) Activations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activations
}

// Purchases returns copies of all purchases.
func (r *Repository) Purchases() []models.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Purchase, 0, len(r.purchases))
	for _, p := range r.purchases {
		out = append(out, *p)
	}
	return out
}

// WebhookEvents returns copies of all journaled deliveries.
func (r *Repository) WebhookEvents() []models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BillingWebhookEvent, 0, len(r.webhooks))
	for _, w := range r.webhooks {
		out = append(out, *w)
	}
	return out
}
