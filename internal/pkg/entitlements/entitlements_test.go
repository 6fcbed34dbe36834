package entitlements

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/app/repository/repositorytest"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/apperror"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/quota"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeSub(userID uint, plan string, end time.Time) models.Subscription {
	start := end.Add(-30 * 24 * time.Hour)
	return models.Subscription{UserID: userID, PlanType: plan, Active: true, StartDate: &start, EndDate: &end}
}

func newResolver(t *testing.T, freeLimit int, subs ...models.Subscription) (*Resolver, *repositorytest.UsageProfiles) {
	t.Helper()
	profiles := repositorytest.NewUsageProfiles()
	tracker := quota.NewTracker(profiles, time.UTC).WithClock(func() time.Time { return testNow })
	return NewResolver(tracker, repositorytest.NewSubscriptions(subs...), freeLimit), profiles
}

func TestCanUseFreeLimitBoundary(t *testing.T) {
	tests := []struct {
		count int
		limit int
		want  bool
	}{
		{count: 9, limit: 10, want: true},
		{count: 10, limit: 10, want: false},
		{count: 11, limit: 10, want: false},
		{count: 0, limit: 0, want: false},
		{count: 2, limit: 3, want: true},
	}

	for _, tt := range tests {
		p := &models.UsageProfile{DailyUsageCount: tt.count, LastUsageDate: "2026-03-01"}
		assert.Equal(t, tt.want, CanUse(p, "2026-03-01", tt.limit, false), "count=%d limit=%d", tt.count, tt.limit)
	}
}

func TestCanUseSubscriberIgnoresCount(t *testing.T) {
	p := &models.UsageProfile{DailyUsageCount: 1000, LastUsageDate: "2026-03-01"}
	assert.True(t, CanUse(p, "2026-03-01", 10, true))
}

func TestCanUseResetsStaleCounter(t *testing.T) {
	p := &models.UsageProfile{DailyUsageCount: 10, LastUsageDate: "2026-02-28"}

	assert.True(t, CanUse(p, "2026-03-01", 10, false))
	assert.Equal(t, 0, p.DailyUsageCount)
	assert.Equal(t, "2026-03-01", p.LastUsageDate)
}

func TestHasActiveSubscription(t *testing.T) {
	past := testNow.Add(-time.Second)
	future := testNow.Add(time.Hour)

	assert.False(t, HasActiveSubscription(nil, testNow))
	assert.False(t, HasActiveSubscription([]models.Subscription{activeSub(1, "monthly", past)}, testNow))
	assert.True(t, HasActiveSubscription([]models.Subscription{activeSub(1, "monthly", testNow)}, testNow))
	assert.True(t, HasActiveSubscription([]models.Subscription{
		activeSub(1, "monthly", past),
		activeSub(1, "yearly", future),
	}, testNow))

	inactive := activeSub(1, "monthly", future)
	inactive.Active = false
	assert.False(t, HasActiveSubscription([]models.Subscription{inactive}, testNow))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 10, Remaining(0, 10))
	assert.Equal(t, 1, Remaining(9, 10))
	assert.Equal(t, 0, Remaining(10, 10))
	assert.Equal(t, 0, Remaining(50, 10))
}

func TestResolverCanUse(t *testing.T) {
	r, profiles := newResolver(t, 10)
	profiles.Put(models.UsageProfile{UserID: 1, DailyUsageCount: 9, LastUsageDate: "2026-03-01"})
	profiles.Put(models.UsageProfile{UserID: 2, DailyUsageCount: 10, LastUsageDate: "2026-03-01"})
	profiles.Put(models.UsageProfile{UserID: 3, DailyUsageCount: 10, LastUsageDate: "2026-02-28"})

	ok, err := r.CanUse(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanUse(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanUse(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok, "yesterday's count does not apply today")

	ok, err = r.CanUse(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, ok, "absent profile starts at zero")
}

func TestResolverSubscriberUnlimited(t *testing.T) {
	r, profiles := newResolver(t, 10, activeSub(1, "monthly", testNow.Add(24*time.Hour)))
	profiles.Put(models.UsageProfile{UserID: 1, DailyUsageCount: 1000, LastUsageDate: "2026-03-01"})

	ok, err := r.CanUse(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolverExpiredSubscriptionFallsBackToQuota(t *testing.T) {
	r, profiles := newResolver(t, 10, activeSub(1, "monthly", testNow.Add(-time.Minute)))
	profiles.Put(models.UsageProfile{UserID: 1, DailyUsageCount: 10, LastUsageDate: "2026-03-01"})

	ok, err := r.CanUse(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverStatus(t *testing.T) {
	end := testNow.Add(48 * time.Hour)
	r, profiles := newResolver(t, 10, activeSub(2, "yearly", end))
	profiles.Put(models.UsageProfile{UserID: 1, DailyUsageCount: 4, LastUsageDate: "2026-03-01"})

	st, err := r.Status(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, st.Unlimited)
	assert.Equal(t, PlanFree, st.Plan)
	assert.Equal(t, 4, st.UsageCount)
	assert.Equal(t, 6, st.Remaining)
	assert.Equal(t, 10, st.FreeLimit)
	assert.Equal(t, "2026-03-01", st.UsageDate)
	assert.Nil(t, st.ExpiresAt)

	st, err = r.Status(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, st.Unlimited)
	assert.Equal(t, PlanYearly, st.Plan)
	require.NotNil(t, st.ExpiresAt)
	assert.True(t, end.Equal(*st.ExpiresAt))
}

func TestResolverConsumeFreeUser(t *testing.T) {
	r, _ := newResolver(t, 3)

	for i := 1; i <= 3; i++ {
		ok, st, err := r.Consume(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, st.UsageCount)
	}

	ok, st, err := r.Consume(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, st.UsageCount)
	assert.Equal(t, 0, st.Remaining)
}

func TestResolverConsumeSubscriberStillCounts(t *testing.T) {
	r, profiles := newResolver(t, 10, activeSub(1, "monthly", testNow.Add(time.Hour)))

	for i := 0; i < 50; i++ {
		ok, _, err := r.Consume(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	stored, _ := profiles.Get(1)
	assert.Equal(t, 50, stored.DailyUsageCount)

	ok, err := r.CanUse(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolverConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	r, profiles := newResolver(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := r.Consume(context.Background(), 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
	stored, _ := profiles.Get(1)
	assert.Equal(t, 10, stored.DailyUsageCount)
}

func TestResolverStorageErrors(t *testing.T) {
	profiles := repositorytest.NewUsageProfiles()
	subs := repositorytest.NewSubscriptions()
	subs.Fail = true
	r := NewResolver(quota.NewTracker(profiles, time.UTC), subs, 10)

	_, err := r.CanUse(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrStorage)

	_, _, err = r.Consume(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrStorage)
}

func TestPlanOf(t *testing.T) {
	assert.Equal(t, PlanMonthly, PlanOf("monthly"))
	assert.Equal(t, PlanYearly, PlanOf("yearly"))
	assert.Equal(t, PlanFree, PlanOf(""))
	assert.Equal(t, PlanFree, PlanOf("lifetime"))
}
