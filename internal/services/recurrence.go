package services

import (
	"time"

	"github.com/clientbridge/engagement/internal/db/models"
)

// DefaultSendTime is used when a schedule carries no send time and no
// configured default applies.
const DefaultSendTime = "09:00"

// NextOccurrence computes the next automatic send time for a schedule. The
// base is LastSentAt when present, otherwise anchor (first computation).
// MILESTONE_BASED schedules return nil: they advance on milestone completion,
// not on the clock. The function is pure; callers own persistence of the
// result.
func NextOccurrence(sched *models.ScheduledUpdate, anchor time.Time, defaultSendTime string) *time.Time {
	base := anchor
	if sched.LastSentAt != nil {
		base = *sched.LastSentAt
	}

	var next time.Time
	switch sched.Frequency {
	case models.FreqDaily:
		next = base.AddDate(0, 0, 1)
	case models.FreqWeekly:
		if sched.DayOfWeek != nil {
			// Minimum 1-day advance even when base already falls on the
			// target weekday, so recomputation always makes forward progress.
			next = base.AddDate(0, 0, 1)
			for isoWeekday(next) != *sched.DayOfWeek {
				next = next.AddDate(0, 0, 1)
			}
		} else {
			next = base.AddDate(0, 0, 7)
		}
	case models.FreqBiWeekly:
		next = base.AddDate(0, 0, 14)
	case models.FreqMonthly:
		next = nextMonthly(base, sched.DayOfMonth)
	case models.FreqMilestoneBased:
		return nil
	default:
		return nil
	}

	next = atSendTime(next, sched.Time, defaultSendTime)
	return &next
}

// isoWeekday maps time.Weekday (Sunday=0) onto the 1 (Mon) .. 7 (Sun) range
// schedules are stored with.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// nextMonthly advances by one calendar month, clamping the requested day to
// the target month's last valid day (day 31 in a 30-day month yields day 30).
func nextMonthly(base time.Time, dayOfMonth *int) time.Time {
	year, month, day := base.Date()
	if dayOfMonth != nil {
		day = *dayOfMonth
	}

	targetYear, targetMonth := year, month+1
	if targetMonth > time.December {
		targetMonth = time.January
		targetYear++
	}
	if last := lastDayOfMonth(targetYear, targetMonth); day > last {
		day = last
	}

	hour, min, sec := base.Clock()
	return time.Date(targetYear, targetMonth, day, hour, min, sec, 0, base.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day zero of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// atSendTime overwrites the time-of-day with the schedule's "HH:MM" send
// time, falling back to the default when the value is missing or unparseable.
func atSendTime(t time.Time, sendTime, defaultSendTime string) time.Time {
	if defaultSendTime == "" {
		defaultSendTime = DefaultSendTime
	}
	parsed, err := time.Parse("15:04", sendTime)
	if err != nil {
		parsed, err = time.Parse("15:04", defaultSendTime)
		if err != nil {
			parsed, _ = time.Parse("15:04", DefaultSendTime)
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), parsed.Hour(), parsed.Minute(), 0, 0, t.Location())
}
