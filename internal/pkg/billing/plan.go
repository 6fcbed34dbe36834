package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
)

const (
	MonthlyDuration = 30 * 24 * time.Hour
	YearlyDuration  = 365 * 24 * time.Hour
)

func normalizePlan(planType string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(planType))
	if !models.IsValidPlanType(p) {
		return "", false
	}
	return p, true
}

// PlanDuration returns the fixed access period bought with a plan.
func PlanDuration(planType string) (time.Duration, bool) {
	switch planType {
	case models.PlanTypeMonthly:
		return MonthlyDuration, true
	case models.PlanTypeYearly:
		return YearlyDuration, true
	default:
		return 0, false
	}
}

// Activate turns sub on for its plan period starting at now. It does not
// check whether sub is already active; the reconciler only calls it for the
// delivery that won the purchase status transition.
func Activate(sub *models.Subscription, providerReference string, now time.Time) error {
	d, ok := PlanDuration(sub.PlanType)
	if !ok {
		return apperror.Validation("subscription %d has unknown plan type %q", sub.ID, sub.PlanType)
	}
	start := now
	end := now.Add(d)
	sub.Active = true
	sub.StartDate = &start
	sub.EndDate = &end
	if providerReference != "" {
		sub.ProviderReference = providerReference
	}
	return nil
}
