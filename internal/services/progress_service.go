package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/notify"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

// ProgressService manages progress updates and their milestones, and drives
// the milestone-completion path that advances MILESTONE_BASED schedules.
type ProgressService struct {
	store      store.Store
	schedules  *ScheduleService
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
	metrics    *metrics.MetricsCollector
	now        func() time.Time
}

func NewProgressService(st store.Store, schedules *ScheduleService, dispatcher *notify.Dispatcher, logger *zap.Logger, mc *metrics.MetricsCollector) *ProgressService {
	return &ProgressService{
		store:      st,
		schedules:  schedules,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("service", "progress_service")),
		metrics:    mc,
		now:        time.Now,
	}
}

func (s *ProgressService) CreateUpdate(ctx context.Context, upd *models.ProgressUpdate) (*models.ProgressUpdate, error) {
	if upd.ProjectID == "" {
		return nil, apperror.Validation("progress update project id is required")
	}
	if upd.Title == "" {
		return nil, apperror.Validation("progress update title is required")
	}
	if upd.CompletionPercentage < 0 || upd.CompletionPercentage > 100 {
		return nil, apperror.Validation("completion percentage %d is out of range 0-100", upd.CompletionPercentage)
	}

	now := s.now()
	if upd.ID == "" {
		upd.ID = uuid.New().String()
	}
	upd.CreatedAt = now
	upd.UpdatedAt = now

	if err := s.store.InsertProgressUpdate(ctx, upd); err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter("progress_updates_created", nil)
	return upd, nil
}

func (s *ProgressService) GetUpdate(ctx context.Context, id string) (*models.ProgressUpdate, error) {
	upd, err := s.store.GetProgressUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	milestones, err := s.store.ListMilestones(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Milestones = milestones
	return upd, nil
}

func (s *ProgressService) ListByProject(ctx context.Context, projectID string) ([]models.ProgressUpdate, error) {
	return s.store.ListProgressByProject(ctx, projectID)
}

func (s *ProgressService) AddMilestone(ctx context.Context, ms *models.MilestoneUpdate) (*models.MilestoneUpdate, error) {
	if ms.MilestoneName == "" {
		return nil, apperror.Validation("milestone name is required")
	}
	if _, err := s.store.GetProgressUpdate(ctx, ms.ProgressUpdateID); err != nil {
		return nil, err
	}

	if ms.ID == "" {
		ms.ID = uuid.New().String()
	}
	if err := s.store.InsertMilestone(ctx, ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// CompleteMilestone stamps the milestone and advances every active
// MILESTONE_BASED schedule on the project: that frequency has no clock-driven
// next time, so completion events are what trigger its sends.
func (s *ProgressService) CompleteMilestone(ctx context.Context, milestoneID, notes string) (*models.MilestoneUpdate, error) {
	ms, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if ms.IsCompleted {
		return ms, nil
	}

	now := s.now()
	ms.IsCompleted = true
	ms.CompletedAt = &now
	if notes != "" {
		ms.Notes = notes
	}
	if err := s.store.ReplaceMilestone(ctx, ms); err != nil {
		return nil, err
	}

	upd, err := s.store.GetProgressUpdate(ctx, ms.ProgressUpdateID)
	if err != nil {
		return nil, err
	}

	if err := s.triggerMilestoneSchedules(ctx, upd, ms, now); err != nil {
		// The milestone itself is committed; schedule fan-out is best effort.
		s.logger.Error("Milestone schedule trigger failed",
			zap.String("milestone_id", milestoneID), zap.Error(err))
	}

	s.metrics.IncrementCounter("milestones_completed", nil)
	return ms, nil
}

func (s *ProgressService) triggerMilestoneSchedules(ctx context.Context, upd *models.ProgressUpdate, ms *models.MilestoneUpdate, now time.Time) error {
	schedules, err := s.store.ListSchedulesByProject(ctx, upd.ProjectID)
	if err != nil {
		return err
	}

	for _, sched := range schedules {
		if !sched.IsActive || sched.Frequency != models.FreqMilestoneBased {
			continue
		}
		for _, recipientID := range sched.RecipientIDs {
			s.dispatcher.Dispatch(ctx, notify.Event{
				Kind:        notify.EventMilestoneUpdate,
				RecipientID: recipientID,
				SubjectID:   sched.ID,
				Context: map[string]string{
					notify.ContextProgressUpdateID: upd.ID,
					"project_id":                   upd.ProjectID,
					"milestone_name":               ms.MilestoneName,
				},
			}, now)
		}
		if _, err := s.schedules.RecordSent(ctx, sched.ID, now); err != nil {
			s.logger.Error("Failed to record milestone send",
				zap.String("schedule_id", sched.ID), zap.Error(err))
		}
	}
	return nil
}

// ShareWithClient flips the sharing flag and fans a notification out to every
// recipient configured on the project's active schedules.
func (s *ProgressService) ShareWithClient(ctx context.Context, updateID string) (*models.ProgressUpdate, error) {
	upd, err := s.store.GetProgressUpdate(ctx, updateID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !upd.IsSharedWithClient {
		upd.IsSharedWithClient = true
		upd.UpdatedAt = now
		if err := s.store.ReplaceProgressUpdate(ctx, upd); err != nil {
			return nil, err
		}
	}

	schedules, err := s.store.ListSchedulesByProject(ctx, upd.ProjectID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, sched := range schedules {
		if !sched.IsActive {
			continue
		}
		for _, recipientID := range sched.RecipientIDs {
			if seen[recipientID] {
				continue
			}
			seen[recipientID] = true
			s.dispatcher.Dispatch(ctx, notify.Event{
				Kind:        notify.EventScheduledUpdate,
				RecipientID: recipientID,
				SubjectID:   upd.ID,
				Context: map[string]string{
					notify.ContextProgressUpdateID: upd.ID,
					"project_id":                   upd.ProjectID,
					"title":                        upd.Title,
				},
			}, now)
		}
	}

	s.metrics.IncrementCounter("progress_updates_shared", nil)
	return upd, nil
}
