package models

import (
	"time"
)

type UpdateFrequency string

const (
	FreqDaily          UpdateFrequency = "DAILY"
	FreqWeekly         UpdateFrequency = "WEEKLY"
	FreqBiWeekly       UpdateFrequency = "BI_WEEKLY"
	FreqMonthly        UpdateFrequency = "MONTHLY"
	FreqMilestoneBased UpdateFrequency = "MILESTONE_BASED"
)

// ScheduledUpdate is the recurrence rule for automated progress-update sends
// on a project. NextScheduledAt is a derived cache, recomputed whenever the
// definition or LastSentAt changes. MILESTONE_BASED schedules have no clock
// driven next time; milestone completion advances them.
type ScheduledUpdate struct {
	ID                string          `gorm:"primaryKey"`
	ProjectID         string          `gorm:"index;not null"`
	Frequency         UpdateFrequency `gorm:"not null"`
	DayOfWeek         *int            // 1 (Mon) .. 7 (Sun)
	DayOfMonth        *int            // 1 .. 31, clamped to month length
	Time              string          // "HH:MM", empty means default send time
	IsActive          bool            `gorm:"not null;default:true;index"`
	LastSentAt        *time.Time
	NextScheduledAt   *time.Time      `gorm:"index"`
	RecipientIDs      []string        `gorm:"serializer:json"`
	IncludePhotos     bool            `gorm:"not null;default:true"`
	IncludeMilestones bool            `gorm:"not null;default:true"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
