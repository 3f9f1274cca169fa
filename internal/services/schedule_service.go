package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

// ScheduleService manages recurring progress-update schedules. The cached
// NextScheduledAt is recomputed on every definition change and after each
// send.
type ScheduleService struct {
	store           store.Store
	logger          *zap.Logger
	metrics         *metrics.MetricsCollector
	defaultSendTime string
	now             func() time.Time
}

func NewScheduleService(st store.Store, logger *zap.Logger, mc *metrics.MetricsCollector, defaultSendTime string) *ScheduleService {
	if defaultSendTime == "" {
		defaultSendTime = DefaultSendTime
	}
	return &ScheduleService{
		store:           st,
		logger:          logger.With(zap.String("service", "schedule_service")),
		metrics:         mc,
		defaultSendTime: defaultSendTime,
		now:             time.Now,
	}
}

func validFrequency(f models.UpdateFrequency) bool {
	switch f {
	case models.FreqDaily, models.FreqWeekly, models.FreqBiWeekly, models.FreqMonthly, models.FreqMilestoneBased:
		return true
	}
	return false
}

func (s *ScheduleService) validate(sched *models.ScheduledUpdate) error {
	if sched.ProjectID == "" {
		return apperror.Validation("schedule project id is required")
	}
	if !validFrequency(sched.Frequency) {
		return apperror.Validation("unknown frequency %q", sched.Frequency)
	}
	if sched.DayOfWeek != nil && (*sched.DayOfWeek < 1 || *sched.DayOfWeek > 7) {
		return apperror.Validation("day of week %d is out of range 1-7", *sched.DayOfWeek)
	}
	if sched.DayOfMonth != nil && (*sched.DayOfMonth < 1 || *sched.DayOfMonth > 31) {
		return apperror.Validation("day of month %d is out of range 1-31", *sched.DayOfMonth)
	}
	return nil
}

// CreateSchedule validates the definition, computes the first occurrence, and
// persists it.
func (s *ScheduleService) CreateSchedule(ctx context.Context, sched *models.ScheduledUpdate) (*models.ScheduledUpdate, error) {
	if err := s.validate(sched); err != nil {
		return nil, err
	}

	now := s.now()
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	sched.IsActive = true
	sched.CreatedAt = now
	sched.UpdatedAt = now
	sched.NextScheduledAt = NextOccurrence(sched, now, s.defaultSendTime)

	if err := s.store.InsertSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("schedules_created", nil)
	s.logger.Info("Schedule created",
		zap.String("schedule_id", sched.ID),
		zap.String("project_id", sched.ProjectID),
		zap.String("frequency", string(sched.Frequency)))
	return sched, nil
}

// UpdateSchedule replaces the definition and recomputes the cached next
// occurrence from the existing LastSentAt.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, sched *models.ScheduledUpdate) (*models.ScheduledUpdate, error) {
	if err := s.validate(sched); err != nil {
		return nil, err
	}
	existing, err := s.store.GetSchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}

	sched.CreatedAt = existing.CreatedAt
	sched.LastSentAt = existing.LastSentAt
	sched.UpdatedAt = s.now()
	sched.NextScheduledAt = NextOccurrence(sched, s.now(), s.defaultSendTime)

	if err := s.store.ReplaceSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *ScheduleService) GetSchedule(ctx context.Context, id string) (*models.ScheduledUpdate, error) {
	return s.store.GetSchedule(ctx, id)
}

func (s *ScheduleService) ListByProject(ctx context.Context, projectID string) ([]models.ScheduledUpdate, error) {
	return s.store.ListSchedulesByProject(ctx, projectID)
}

// SetActive toggles a schedule. Reactivating recomputes the next occurrence
// so a long-paused schedule does not fire immediately for every missed slot.
func (s *ScheduleService) SetActive(ctx context.Context, id string, active bool) (*models.ScheduledUpdate, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	sched.IsActive = active
	sched.UpdatedAt = s.now()
	if active {
		sched.NextScheduledAt = NextOccurrence(sched, s.now(), s.defaultSendTime)
	}
	if err := s.store.ReplaceSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *ScheduleService) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.store.GetSchedule(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteSchedule(ctx, id)
}

// RecordSent stamps LastSentAt and recomputes NextScheduledAt. The sweep
// calls it right after emitting a send event.
func (s *ScheduleService) RecordSent(ctx context.Context, id string, now time.Time) (*models.ScheduledUpdate, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	sched.LastSentAt = &now
	sched.UpdatedAt = now
	sched.NextScheduledAt = NextOccurrence(sched, now, s.defaultSendTime)

	if err := s.store.ReplaceSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("scheduled_updates_sent", nil)
	return sched, nil
}

// DueSchedules returns active schedules due at or before now.
func (s *ScheduleService) DueSchedules(ctx context.Context, now time.Time) ([]models.ScheduledUpdate, error) {
	return s.store.ListDueSchedules(ctx, now)
}
