package entitlements

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/repository"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/quota"
)

// Status is the usage and access snapshot of one user for today.
type Status struct {
	UserID     uint       `json:"user_id"`
	Unlimited  bool       `json:"unlimited"`
	Plan       Plan       `json:"plan"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	UsageCount int        `json:"usage_count"`
	FreeLimit  int        `json:"free_limit"`
	Remaining  int        `json:"remaining"`
	UsageDate  string     `json:"usage_date"`
}

// Resolver answers whether a user may use the metered feature.
type Resolver struct {
	tracker   *quota.Tracker
	subs      repository.SubscriptionRepository
	freeLimit int
}

// NewResolver builds a resolver. freeLimit comes from configuration.
func NewResolver(tracker *quota.Tracker, subs repository.SubscriptionRepository, freeLimit int) *Resolver {
	if freeLimit < 0 {
		freeLimit = 0
	}
	return &Resolver{tracker: tracker, subs: subs, freeLimit: freeLimit}
}

// FreeLimit returns the configured daily free limit.
func (r *Resolver) FreeLimit() int {
	return r.freeLimit
}

// HasUnlimitedAccess reports whether the user holds a current subscription.
func (r *Resolver) HasUnlimitedAccess(ctx context.Context, userID uint) (bool, error) {
	ok, err := r.subs.HasActive(ctx, userID, r.tracker.Now())
	if err != nil {
		log.Errorf("[Entitlements] Subscription lookup failed for user_id=%d: %v", userID, err)
		return false, apperror.Storage("lookup subscription", err)
	}
	return ok, nil
}

// CanUse resets a stale counter and decides access without consuming a use.
func (r *Resolver) CanUse(ctx context.Context, userID uint) (bool, error) {
	profile, err := r.tracker.Profile(ctx, userID)
	if err != nil {
		return false, err
	}
	subscribed, err := r.HasUnlimitedAccess(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanUse(profile, r.tracker.Today(), r.freeLimit, subscribed), nil
}

// Status returns the current usage and access snapshot.
func (r *Resolver) Status(ctx context.Context, userID uint) (*Status, error) {
	profile, err := r.tracker.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := r.subs.FindCurrent(ctx, userID, r.tracker.Now())
	if err != nil {
		log.Errorf("[Entitlements] Subscription lookup failed for user_id=%d: %v", userID, err)
		return nil, apperror.Storage("lookup subscription", err)
	}

	today := r.tracker.Today()
	count := profile.CountFor(today)
	st := &Status{
		UserID:     userID,
		Plan:       PlanFree,
		UsageCount: count,
		FreeLimit:  r.freeLimit,
		Remaining:  Remaining(count, r.freeLimit),
		UsageDate:  today,
	}
	if sub != nil {
		st.Unlimited = true
		st.Plan = PlanOf(sub.PlanType)
		st.ExpiresAt = sub.EndDate
	}
	return st, nil
}

// Consume counts one use of the metered feature. Subscribers always pass and
// their use is still counted. Free users pass only while the conditional
// increment succeeds, so concurrent requests cannot exceed the limit.
func (r *Resolver) Consume(ctx context.Context, userID uint) (bool, *Status, error) {
	subscribed, err := r.HasUnlimitedAccess(ctx, userID)
	if err != nil {
		return false, nil, err
	}

	allowed := true
	if subscribed {
		if _, err := r.tracker.Increment(ctx, userID); err != nil {
			return false, nil, err
		}
	} else {
		allowed, err = r.tracker.TryIncrement(ctx, userID, r.freeLimit)
		if err != nil {
			return false, nil, err
		}
	}

	st, err := r.Status(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	if !allowed {
		log.Infof("[Entitlements] Daily quota exhausted for user_id=%d (limit=%d)", userID, r.freeLimit)
	}
	return allowed, st, nil
}
