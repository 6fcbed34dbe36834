package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. Find methods
// return (nil, nil) when no row matches.
type Repository interface {
	CreateOrder(ctx context.Context, purchase *models.Purchase, sub *models.Subscription) error
	AttachProviderReference(ctx context.Context, orderID, providerReference string) error
	FindPurchaseByOrderID(ctx context.Context, orderID string) (*models.Purchase, error)
	FindPurchaseByProviderReference(ctx context.Context, providerReference string) (*models.Purchase, error)
	FindSubscriptionByOrderID(ctx context.Context, orderID string) (*models.Subscription, error)
	ListPurchasesByUser(ctx context.Context, userID uint, limit int) ([]models.Purchase, error)
	// CompleteOrder moves a pending purchase to completed and activates its
	// subscription in one transaction. It reports false when the purchase was
	// no longer pending.
	CompleteOrder(ctx context.Context, in CompletionInput) (bool, error)
	// FailPurchase moves a pending purchase to failed. It reports false when
	// the purchase was no longer pending.
	FailPurchase(ctx context.Context, in FailureInput) (bool, error)
	ListPurchaseEvents(ctx context.Context, purchaseID uint) ([]models.PurchaseEvent, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, orderID, note string) error
	GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error)
	SetWebhookArchiveKey(ctx context.Context, id uint, key string) error
	// ListUnarchivedWebhookEvents returns journaled events with an id above
	// afterID, created before olderThan and without an archive key yet,
	// oldest first.
	ListUnarchivedWebhookEvents(ctx context.Context, olderThan time.Time, afterID uint, limit int) ([]models.BillingWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateOrder(ctx context.Context, purchase *models.Purchase, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(purchase).Error; err != nil {
			return err
		}
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Create(&models.PurchaseEvent{
			PurchaseID: purchase.ID,
			OrderID:    purchase.OrderID,
			ToStatus:   models.PurchaseStatusPending,
			Source:     models.PurchaseEventSourceCheckout,
		}).Error
	})
}

// AttachProviderReference stores the provider's reference on both records of
// an order unless a webhook already set one.
func (r *gormRepository) AttachProviderReference(ctx context.Context, orderID, providerReference string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Purchase{}).
			Where("order_id = ? AND provider_reference = ?", orderID, "").
			Update("provider_reference", providerReference).Error; err != nil {
			return err
		}
		return tx.Model(&models.Subscription{}).
			Where("order_id = ? AND provider_reference = ?", orderID, "").
			Update("provider_reference", providerReference).Error
	})
}

func (r *gormRepository) FindPurchaseByOrderID(ctx context.Context, orderID string) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	return notFoundAsNil(&p, err)
}

func (r *gormRepository) FindPurchaseByProviderReference(ctx context.Context, providerReference string) (*models.Purchase, error) {
	if providerReference == "" {
		return nil, nil
	}
	var p models.Purchase
	err := r.db.WithContext(ctx).Where("provider_reference = ?", providerReference).
		Order("id DESC").First(&p).Error
	return notFoundAsNil(&p, err)
}

func (r *gormRepository) FindSubscriptionByOrderID(ctx context.Context, orderID string) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error
	return notFoundAsNil(&s, err)
}

func (r *gormRepository) ListPurchasesByUser(ctx context.Context, userID uint, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&purchases).Error
	return purchases, err
}

func (r *gormRepository) CompleteOrder(ctx context.Context, in CompletionInput) (bool, error) {
	completed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Purchase{}).
			Where("id = ? AND status = ?", in.PurchaseID, models.PurchaseStatusPending).
			Updates(map[string]interface{}{
				"status":             models.PurchaseStatusCompleted,
				"provider_reference": in.ProviderReference,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		sub := in.Subscription
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Updates(map[string]interface{}{
				"active":             true,
				"start_date":         sub.StartDate,
				"end_date":           sub.EndDate,
				"provider_reference": sub.ProviderReference,
			}).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.PurchaseEvent{
			PurchaseID:      in.PurchaseID,
			OrderID:         in.OrderID,
			FromStatus:      models.PurchaseStatusPending,
			ToStatus:        models.PurchaseStatusCompleted,
			Source:          in.Source,
			ProviderEventID: in.ProviderEventID,
		}).Error; err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

func (r *gormRepository) FailPurchase(ctx context.Context, in FailureInput) (bool, error) {
	failed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Purchase{}).
			Where("id = ? AND status = ?", in.PurchaseID, models.PurchaseStatusPending).
			Update("status", models.PurchaseStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(&models.PurchaseEvent{
			PurchaseID:      in.PurchaseID,
			OrderID:         in.OrderID,
			FromStatus:      models.PurchaseStatusPending,
			ToStatus:        models.PurchaseStatusFailed,
			Source:          in.Source,
			ProviderEventID: in.ProviderEventID,
		}).Error; err != nil {
			return err
		}
		failed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return failed, nil
}

func (r *gormRepository) ListPurchaseEvents(ctx context.Context, purchaseID uint) ([]models.PurchaseEvent, error) {
	var events []models.PurchaseEvent
	err := r.db.WithContext(ctx).Where("purchase_id = ?", purchaseID).Order("id ASC").Find(&events).Error
	return events, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, orderID, note string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":    &now,
		"processing_note": note,
	}
	if orderID != "" {
		updates["order_id"] = orderID
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error) {
	var ev models.BillingWebhookEvent
	err := r.db.WithContext(ctx).First(&ev, id).Error
	return notFoundAsNil(&ev, err)
}

func (r *gormRepository) SetWebhookArchiveKey(ctx context.Context, id uint, key string) error {
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).
		Update("archive_key", key).Error
}

func (r *gormRepository) ListUnarchivedWebhookEvents(ctx context.Context, olderThan time.Time, afterID uint, limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	q := r.db.WithContext(ctx).
		Where("archive_key = ? AND created_at < ? AND id > ?", "", olderThan, afterID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
