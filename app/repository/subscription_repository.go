package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"gorm.io/gorm"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// HasActive reports whether any activated subscription still covers now.
func (r *subscriptionRepository) HasActive(ctx context.Context, userID uint, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND active = ? AND end_date >= ?", userID, true, now).
		Count(&count).Error
	return count > 0, err
}

// FindCurrent returns the covering subscription that ends last, or nil.
func (r *subscriptionRepository) FindCurrent(ctx context.Context, userID uint, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND end_date >= ?", userID, true, now).
		Order("end_date DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
