package models

import "time"

// UsageDateLayout is the calendar date format stored in LastUsageDate.
const UsageDateLayout = "2006-01-02"

// UsageProfile tracks the free tier usage of one user. DailyUsageCount is only
// meaningful for the day in LastUsageDate; an empty LastUsageDate means the
// user never used the metered feature.
type UsageProfile struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	DailyUsageCount int       `gorm:"not null;default:0" json:"daily_usage_count"`
	LastUsageDate   string    `gorm:"type:char(10);not null;default:''" json:"last_usage_date"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountFor returns the usage count valid for day, treating a stale day as zero.
func (p *UsageProfile) CountFor(day string) int {
	if p == nil || p.LastUsageDate != day {
		return 0
	}
	return p.DailyUsageCount
}
