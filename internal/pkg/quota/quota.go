// Package quota tracks the per-user daily usage counter of the free tier.
//
// A counter is only valid for the day stored next to it. Reading it on any
// other day yields zero, and the first use on a new day starts again at one.
package quota

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/app/repository"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
)

// Today returns the calendar day of now in loc, formatted as stored.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(models.UsageDateLayout)
}

// ResetIfNewDay zeroes a stale counter in memory and reports whether it did.
func ResetIfNewDay(p *models.UsageProfile, today string) bool {
	if p.LastUsageDate == today {
		return false
	}
	p.DailyUsageCount = 0
	p.LastUsageDate = today
	return true
}

// Increment applies one use to p in memory.
func Increment(p *models.UsageProfile, today string) {
	ResetIfNewDay(p, today)
	p.DailyUsageCount++
}

// Tracker persists usage through a UsageProfileRepository. The repository
// guarantees per-user atomicity; Tracker only decides the day.
type Tracker struct {
	store repository.UsageProfileRepository
	loc   *time.Location
	now   func() time.Time
}

// NewTracker returns a tracker that cuts days in loc.
func NewTracker(store repository.UsageProfileRepository, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{store: store, loc: loc, now: time.Now}
}

// WithClock replaces the time source, for tests and replays.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time {
	return t.now()
}

// Today returns the current usage day.
func (t *Tracker) Today() string {
	return Today(t.now(), t.loc)
}

// Profile resets a stale counter and returns the profile for today.
func (t *Tracker) Profile(ctx context.Context, userID uint) (*models.UsageProfile, error) {
	today := t.Today()
	if err := t.store.ResetIfNewDay(ctx, userID, today); err != nil {
		log.Errorf("[Quota] Reset failed for user_id=%d: %v", userID, err)
		return nil, apperror.Storage("reset usage", err)
	}
	p, err := t.store.GetOrCreate(ctx, userID)
	if err != nil {
		log.Errorf("[Quota] Load failed for user_id=%d: %v", userID, err)
		return nil, apperror.Storage("load usage", err)
	}
	return p, nil
}

// Increment records one use today and returns the updated profile.
func (t *Tracker) Increment(ctx context.Context, userID uint) (*models.UsageProfile, error) {
	p, err := t.store.Increment(ctx, userID, t.Today())
	if err != nil {
		log.Errorf("[Quota] Increment failed for user_id=%d: %v", userID, err)
		return nil, apperror.Storage("increment usage", err)
	}
	return p, nil
}

// TryIncrement records one use only while today's count is below limit.
func (t *Tracker) TryIncrement(ctx context.Context, userID uint, limit int) (bool, error) {
	ok, err := t.store.IncrementIfBelow(ctx, userID, t.Today(), limit)
	if err != nil {
		log.Errorf("[Quota] Conditional increment failed for user_id=%d: %v", userID, err)
		return false, apperror.Storage("increment usage", err)
	}
	return ok, nil
}
