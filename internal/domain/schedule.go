package domain

import (
	"time"
)

// ScheduleFrequency is the outreach cadence tier. The minute tier exists for
// integration testing only.
type ScheduleFrequency string

const (
	FrequencyMinute   ScheduleFrequency = "minute"
	FrequencyDaily    ScheduleFrequency = "daily"
	FrequencyWeekly   ScheduleFrequency = "weekly"
	FrequencyMonthly  ScheduleFrequency = "monthly"
	FrequencyDisabled ScheduleFrequency = "disabled"
)

// Valid reports whether the frequency is one of the known tiers.
func (f ScheduleFrequency) Valid() bool {
	switch f {
	case FrequencyMinute, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyDisabled:
		return true
	}
	return false
}

// Period returns the wall-clock interval of the frequency. Disabled and
// unknown frequencies return 0.
func (f ScheduleFrequency) Period() time.Duration {
	switch f {
	case FrequencyMinute:
		return time.Minute
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Schedule is the per-tenant outreach cadence. LastSent advances atomically
// when the scheduler enqueues work, even if downstream sends later fail, so a
// failing tenant is never retried in a tight loop.
type Schedule struct {
	TenantID  string            `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;primaryKey"`
	Frequency ScheduleFrequency `json:"frequency" db:"frequency" gorm:"column:frequency;default:daily"`
	IsActive  bool              `json:"is_active" db:"is_active" gorm:"column:is_active;default:true"`
	LastSent  *time.Time        `json:"last_sent" db:"last_sent" gorm:"column:last_sent"`
	CreatedAt time.Time         `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Schedule) TableName() string {
	return "outreach_schedules"
}

// UpsertScheduleRequest configures a tenant's outreach cadence. A nil
// IsActive keeps the existing flag (or true on first write).
type UpsertScheduleRequest struct {
	TenantID  string            `json:"tenant_id"`
	Frequency ScheduleFrequency `json:"frequency"`
	IsActive  *bool             `json:"is_active,omitempty"`
}

// Due reports whether the schedule should fire at now. A schedule with no
// prior send is due immediately; inactive or disabled schedules are never due.
func (s *Schedule) Due(now time.Time) bool {
	if !s.IsActive || s.Frequency == FrequencyDisabled {
		return false
	}
	if s.LastSent == nil {
		return true
	}
	period := s.Frequency.Period()
	if period == 0 {
		return false
	}
	return !now.Before(s.LastSent.Add(period))
}
