package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientbridge/engagement/internal/db/models"
)

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func TestNextOccurrenceDaily(t *testing.T) {
	anchor := time.Date(2026, time.March, 15, 14, 30, 45, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqDaily, Time: "08:15"}

	next := NextOccurrence(sched, anchor, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 16, 8, 15, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceUsesLastSentAtAsBase(t *testing.T) {
	anchor := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	lastSent := time.Date(2026, time.March, 20, 10, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{
		Frequency:  models.FreqDaily,
		LastSentAt: timePtr(lastSent),
	}

	next := NextOccurrence(sched, anchor, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 21, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceWeeklyLandsOnRequestedWeekday(t *testing.T) {
	// Monday anchor, Wednesday target: upcoming Wednesday at the default time.
	monday := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	sched := &models.ScheduledUpdate{Frequency: models.FreqWeekly, DayOfWeek: intPtr(3)}
	next := NextOccurrence(sched, monday, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.Equal(t, time.Date(2026, time.January, 7, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceWeeklySameWeekdayAdvancesFullWeek(t *testing.T) {
	monday := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqWeekly, DayOfWeek: intPtr(1)}

	next := NextOccurrence(sched, monday, "09:00")
	require.NotNil(t, next)
	assert.True(t, next.After(monday), "must never return the base day itself")
	assert.Equal(t, time.Date(2026, time.January, 12, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceWeeklyWithoutWeekday(t *testing.T) {
	base := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqWeekly}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, base.AddDate(0, 0, 7), *next)
}

func TestNextOccurrenceBiWeekly(t *testing.T) {
	base := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqBiWeekly}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, base.AddDate(0, 0, 14), *next)
}

func TestNextOccurrenceMonthlyClampsToLastDay(t *testing.T) {
	// Day 31 requested, April has 30: clamp to April 30, never April 31.
	base := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqMonthly, DayOfMonth: intPtr(31)}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.April, 30, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceMonthlyClampsFebruary(t *testing.T) {
	base := time.Date(2026, time.January, 31, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqMonthly}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.February, 28, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceMonthlyYearRollover(t *testing.T) {
	base := time.Date(2026, time.December, 10, 9, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqMonthly, DayOfMonth: intPtr(31)}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2027, time.January, 31, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceMilestoneBasedHasNoNextTime(t *testing.T) {
	sched := &models.ScheduledUpdate{Frequency: models.FreqMilestoneBased}
	assert.Nil(t, NextOccurrence(sched, time.Now(), "09:00"))
}

func TestNextOccurrenceUnparseableTimeFallsBackToDefault(t *testing.T) {
	base := time.Date(2026, time.March, 15, 14, 0, 0, 0, time.UTC)
	sched := &models.ScheduledUpdate{Frequency: models.FreqDaily, Time: "not-a-time"}

	next := NextOccurrence(sched, base, "09:00")
	require.NotNil(t, next)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 0, next.Second())
}
