// Package repositorytest provides in-memory repository implementations with
// the same atomicity as the SQL statements they stand in for.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/MoodTunes/app/models"
)

// ErrInjected is returned by stores configured to fail.
var ErrInjected = errors.New("injected storage failure")

// UsageProfiles is a mutex guarded UsageProfileRepository.
type UsageProfiles struct {
	mu       sync.Mutex
	profiles map[uint]*models.UsageProfile
	Fail     bool
}

func NewUsageProfiles() *UsageProfiles {
	return &UsageProfiles{profiles: map[uint]*models.UsageProfile{}}
}

// Put seeds a profile.
func (s *UsageProfiles) Put(p models.UsageProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.UserID] = &cp
}

// Get returns a copy of the stored profile without creating one.
func (s *UsageProfiles) Get(userID uint) (models.UsageProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return models.UsageProfile{}, false
	}
	return *p, true
}

func (s *UsageProfiles) ensure(userID uint) *models.UsageProfile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &models.UsageProfile{ID: uint(len(s.profiles) + 1), UserID: userID}
		s.profiles[userID] = p
	}
	return p
}

func (s *UsageProfiles) GetOrCreate(_ context.Context, userID uint) (*models.UsageProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	cp := *s.ensure(userID)
	return &cp, nil
}

func (s *UsageProfiles) ResetIfNewDay(_ context.Context, userID uint, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	p := s.ensure(userID)
	if p.LastUsageDate != day {
		p.DailyUsageCount = 0
		p.LastUsageDate = day
	}
	return nil
}

func (s *UsageProfiles) Increment(_ context.Context, userID uint, day string) (*models.UsageProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	p := s.ensure(userID)
	increment(p, day)
	cp := *p
	return &cp, nil
}

func (s *UsageProfiles) IncrementIfBelow(_ context.Context, userID uint, day string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	if limit <= 0 {
		return false, nil
	}
	p := s.ensure(userID)
	if p.LastUsageDate == day && p.DailyUsageCount >= limit {
		return false, nil
	}
	increment(p, day)
	return true, nil
}

func increment(p *models.UsageProfile, day string) {
	if p.LastUsageDate == day {
		p.DailyUsageCount++
	} else {
		p.DailyUsageCount = 1
	}
	p.LastUsageDate = day
}

// Subscriptions is an in-memory SubscriptionRepository.
type Subscriptions struct {
	mu   sync.Mutex
	subs []models.Subscription
	Fail bool
}

func NewSubscriptions(subs ...models.Subscription) *Subscriptions {
	return &Subscriptions{subs: subs}
}

// Add stores another subscription.
func (s *Subscriptions) Add(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

func (s *Subscriptions) HasActive(ctx context.Context, userID uint, now time.Time) (bool, error) {
	sub, err := s.FindCurrent(ctx, userID, now)
	return sub != nil, err
}

func (s *Subscriptions) FindCurrent(_ context.Context, userID uint, now time.Time) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	var best *models.Subscription
	for i := range s.subs {
		sub := s.subs[i]
		if sub.UserID != userID || !sub.IsCurrent(now) {
			continue
		}
		if best == nil || sub.EndDate.After(*best.EndDate) {
			cp := sub
			best = &cp
		}
	}
	return best, nil
}
