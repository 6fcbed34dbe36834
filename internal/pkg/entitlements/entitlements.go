package entitlements

import (
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/quota"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// PlanOf maps a subscription plan type to a Plan, falling back to free.
func PlanOf(planType string) Plan {
	switch Plan(planType) {
	case PlanMonthly:
		return PlanMonthly
	case PlanYearly:
		return PlanYearly
	default:
		return PlanFree
	}
}

// HasActiveSubscription reports whether any of subs covers now. Overlapping
// subscriptions of any plan count.
func HasActiveSubscription(subs []models.Subscription, now time.Time) bool {
	for i := range subs {
		if subs[i].IsCurrent(now) {
			return true
		}
	}
	return false
}

// CanUse decides access for one request. The profile's stale counter is reset
// first; subscribers are always allowed, everybody else while today's count is
// below freeLimit.
func CanUse(profile *models.UsageProfile, today string, freeLimit int, subscribed bool) bool {
	quota.ResetIfNewDay(profile, today)
	if subscribed {
		return true
	}
	return profile.DailyUsageCount < freeLimit
}

// Remaining returns the free uses left today, never negative.
func Remaining(count, freeLimit int) int {
	if count >= freeLimit {
		return 0
	}
	return freeLimit - count
}
