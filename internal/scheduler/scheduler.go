// Package scheduler runs the periodic engagement sweep: signature-request
// reminders, expiration warnings, expiration itself, and due recurring sends.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/config"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/notify"
	"github.com/clientbridge/engagement/internal/services"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	RemindersSent int
	WarningsSent  int
	Expired       int
	UpdatesSent   int
	Failures      int
	Skipped       bool
}

// Scheduler owns the sweep loop. Sweeps are cooperative and never reentrant:
// a tick that arrives while a sweep is in flight is skipped, so the same
// entity cannot receive duplicate reminders or expirations from overlapping
// passes.
type Scheduler struct {
	store      store.Store
	signatures *services.SignatureService
	schedules  *services.ScheduleService
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
	metrics    *metrics.MetricsCollector

	pollInterval  time.Duration
	reminderEvery time.Duration
	warningWindow time.Duration

	ticker   *time.Ticker
	quit     chan struct{}
	sweeping atomic.Bool
	now      func() time.Time
}

func New(
	cfg config.SchedulerConfig,
	st store.Store,
	signatures *services.SignatureService,
	schedules *services.ScheduleService,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
	mc *metrics.MetricsCollector,
) *Scheduler {
	return &Scheduler{
		store:         st,
		signatures:    signatures,
		schedules:     schedules,
		dispatcher:    dispatcher,
		logger:        logger.With(zap.String("component", "scheduler")),
		metrics:       mc,
		pollInterval:  cfg.PollInterval,
		reminderEvery: cfg.ReminderEvery,
		warningWindow: cfg.ExpiryWarningWindow,
		ticker:        time.NewTicker(cfg.PollInterval),
		quit:          make(chan struct{}),
		now:           time.Now,
	}
}

// Start runs the sweep loop until Stop is called. Run it on its own
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Sweep loop started", zap.Duration("poll_interval", s.pollInterval))
	for {
		select {
		case <-s.ticker.C:
			s.Sweep(ctx)
		case <-s.quit:
			s.ticker.Stop()
			s.logger.Info("Sweep loop stopped")
			return
		case <-ctx.Done():
			s.ticker.Stop()
			s.logger.Info("Sweep loop cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. An in-flight sweep finishes its current
// entity and returns.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// Sweep executes one pass over open signature requests and due schedules.
// Per-entity failures are isolated: they are logged, counted, and the sweep
// moves on.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("Sweep already in flight, skipping tick")
		return SweepReport{Skipped: true}
	}
	defer s.sweeping.Store(false)

	start := s.now()
	var report SweepReport

	s.sweepRequests(ctx, start, &report)
	s.sweepSchedules(ctx, start, &report)

	s.metrics.IncrementCounter("sweeps_completed", nil)
	s.metrics.ObserveLatency("sweep", time.Since(start))
	s.logger.Info("Sweep completed",
		zap.Int("reminders", report.RemindersSent),
		zap.Int("warnings", report.WarningsSent),
		zap.Int("expired", report.Expired),
		zap.Int("updates_sent", report.UpdatesSent),
		zap.Int("failures", report.Failures))
	return report
}

func (s *Scheduler) sweepRequests(ctx context.Context, now time.Time, report *SweepReport) {
	requests, err := s.store.ListOpenRequests(ctx)
	if err != nil {
		s.logger.Error("Failed to list open requests", zap.Error(err))
		report.Failures++
		return
	}
	s.metrics.ObserveSize("sweep_open_requests", float64(len(requests)))

	for i := range requests {
		if ctx.Err() != nil {
			return
		}
		req := requests[i]
		if err := s.processRequest(ctx, &req, now, report); err != nil {
			s.logger.Error("Request sweep entry failed",
				zap.String("request_id", req.ID), zap.Error(err))
			report.Failures++
		}
	}
}

func (s *Scheduler) processRequest(ctx context.Context, req *models.SignatureRequest, now time.Time, report *SweepReport) error {
	if req.ExpiresAt != nil {
		remaining := req.ExpiresAt.Sub(now)

		if remaining <= 0 {
			_, err := s.signatures.Expire(ctx, req.ID, now)
			if err != nil {
				// Someone else finished or expired it mid-sweep; that is the
				// consistent outcome, not a failure.
				if errors.Is(err, apperror.ErrInvalidState) {
					return nil
				}
				return err
			}
			report.Expired++
			return nil
		}

		if remaining <= s.warningWindow {
			s.dispatcher.Dispatch(ctx, notify.Event{
				Kind:        notify.EventExpirationWarning,
				RecipientID: req.RequestedFrom,
				SubjectID:   req.ID,
				Context: map[string]string{
					"document_id": req.DocumentID,
					"expires_at":  req.ExpiresAt.Format(time.RFC3339),
				},
			}, now)
			report.WarningsSent++
		}
	}

	lastTouch := req.RequestedAt
	if req.LastReminderSent != nil {
		lastTouch = *req.LastReminderSent
	}
	if now.Sub(lastTouch) > s.reminderEvery {
		sent, err := s.signatures.SendReminder(ctx, req.ID)
		if err != nil {
			return err
		}
		if sent {
			s.dispatcher.Dispatch(ctx, notify.Event{
				Kind:        notify.EventSignatureReminder,
				RecipientID: req.RequestedFrom,
				SubjectID:   req.ID,
				Context: map[string]string{
					"document_id":  req.DocumentID,
					"requested_by": req.RequestedBy,
				},
			}, now)
			report.RemindersSent++
		}
	}
	return nil
}

func (s *Scheduler) sweepSchedules(ctx context.Context, now time.Time, report *SweepReport) {
	due, err := s.schedules.DueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due schedules", zap.Error(err))
		report.Failures++
		return
	}
	s.metrics.ObserveSize("sweep_due_schedules", float64(len(due)))

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		sched := due[i]
		if err := s.processSchedule(ctx, &sched, now); err != nil {
			s.logger.Error("Schedule sweep entry failed",
				zap.String("schedule_id", sched.ID), zap.Error(err))
			report.Failures++
			continue
		}
		report.UpdatesSent++
	}
}

func (s *Scheduler) processSchedule(ctx context.Context, sched *models.ScheduledUpdate, now time.Time) error {
	eventCtx := map[string]string{"project_id": sched.ProjectID}
	if latest, err := s.store.LatestSharedUpdate(ctx, sched.ProjectID); err == nil {
		eventCtx[notify.ContextProgressUpdateID] = latest.ID
		eventCtx["title"] = latest.Title
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	for _, recipientID := range sched.RecipientIDs {
		s.dispatcher.Dispatch(ctx, notify.Event{
			Kind:        notify.EventScheduledUpdate,
			RecipientID: recipientID,
			SubjectID:   sched.ID,
			Context:     eventCtx,
		}, now)
	}

	// RecordSent recomputes NextScheduledAt, so the schedule drops out of the
	// due set before the next tick.
	_, err := s.schedules.RecordSent(ctx, sched.ID, now)
	return err
}
