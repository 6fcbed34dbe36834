package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// daily_usage_count is assigned before last_usage_date on purpose: MySQL
// evaluates single-table assignments left to right, so the CASE still sees
// the old date.
const (
	incrementSQL = "UPDATE usage_profiles SET " +
		"daily_usage_count = CASE WHEN last_usage_date = ? THEN daily_usage_count + 1 ELSE 1 END, " +
		"last_usage_date = ?, updated_at = ? WHERE user_id = ?"

	incrementIfBelowSQL = incrementSQL + " AND (last_usage_date <> ? OR daily_usage_count < ?)"

	resetIfNewDaySQL = "UPDATE usage_profiles SET daily_usage_count = 0, last_usage_date = ?, updated_at = ? " +
		"WHERE user_id = ? AND last_usage_date <> ?"
)

type usageProfileRepository struct {
	db *gorm.DB
}

// NewUsageProfileRepository creates a new usage profile repository instance
func NewUsageProfileRepository(db *gorm.DB) UsageProfileRepository {
	return &usageProfileRepository{db: db}
}

// ensure creates the profile row if it does not exist yet.
func (r *usageProfileRepository) ensure(ctx context.Context, userID uint) error {
	profile := models.UsageProfile{UserID: userID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&profile).Error
}

func (r *usageProfileRepository) find(ctx context.Context, userID uint) (*models.UsageProfile, error) {
	var profile models.UsageProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetOrCreate returns the profile, creating an empty one on first access.
func (r *usageProfileRepository) GetOrCreate(ctx context.Context, userID uint) (*models.UsageProfile, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	return r.find(ctx, userID)
}

// ResetIfNewDay zeroes the counter when the stored day differs from day.
func (r *usageProfileRepository) ResetIfNewDay(ctx context.Context, userID uint, day string) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(resetIfNewDaySQL, day, time.Now().UTC(), userID, day).Error
}

// Increment counts one use for day, starting at 1 on a new day.
func (r *usageProfileRepository) Increment(ctx context.Context, userID uint, day string) (*models.UsageProfile, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Exec(incrementSQL, day, day, time.Now().UTC(), userID).Error; err != nil {
		return nil, err
	}
	return r.find(ctx, userID)
}

// IncrementIfBelow counts one use only while the count for day is below
// limit. It reports false when the quota is exhausted.
func (r *usageProfileRepository) IncrementIfBelow(ctx context.Context, userID uint, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	if err := r.ensure(ctx, userID); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Exec(incrementIfBelowSQL, day, day, time.Now().UTC(), userID, day, limit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
