package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Delete(id uint) error
	Count() (int64, error)
}

// UsageProfileRepository persists the daily usage counters. Every mutating
// method is one SQL statement so concurrent requests of the same user never
// lose an update.
type UsageProfileRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.UsageProfile, error)
	ResetIfNewDay(ctx context.Context, userID uint, day string) error
	Increment(ctx context.Context, userID uint, day string) (*models.UsageProfile, error)
	IncrementIfBelow(ctx context.Context, userID uint, day string, limit int) (bool, error)
}

// SubscriptionRepository answers access questions for activated subscriptions.
type SubscriptionRepository interface {
	HasActive(ctx context.Context, userID uint, now time.Time) (bool, error)
	FindCurrent(ctx context.Context, userID uint, now time.Time) (*models.Subscription, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	UsageProfile UsageProfileRepository
	Subscription SubscriptionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		UsageProfile: NewUsageProfileRepository(db),
		Subscription: NewSubscriptionRepository(db),
	}
}
