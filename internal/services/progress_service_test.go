package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/notify"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

// recordingNotifier captures delivered events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Deliver(ctx context.Context, event notify.Event) (notify.DeliveryResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return notify.DeliveryResult{Status: models.DeliverySent}, nil
}

func (n *recordingNotifier) count(kind notify.EventKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Kind == kind {
			c++
		}
	}
	return c
}

func newProgressServiceForTest(t *testing.T, st store.Store) (*ProgressService, *ScheduleService, *recordingNotifier) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mc := metrics.NewMetricsCollector()
	notifier := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(st, notifier, logger)
	schedules := NewScheduleService(st, logger, mc, "09:00")
	progress := NewProgressService(st, schedules, dispatcher, logger, mc)
	return progress, schedules, notifier
}

func TestCreateUpdateValidatesPercentage(t *testing.T) {
	svc, _, _ := newProgressServiceForTest(t, store.NewMemory())

	_, err := svc.CreateUpdate(context.Background(), &models.ProgressUpdate{
		ProjectID:            "project-1",
		Title:                "Framing done",
		CompletionPercentage: 101,
		CreatedBy:            "contractor-1",
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCompleteMilestoneTriggersMilestoneSchedules(t *testing.T) {
	st := store.NewMemory()
	progress, schedules, notifier := newProgressServiceForTest(t, st)
	ctx := context.Background()

	sched, err := schedules.CreateSchedule(ctx, &models.ScheduledUpdate{
		ProjectID:    "project-1",
		Frequency:    models.FreqMilestoneBased,
		RecipientIDs: []string{"client-1", "client-2"},
	})
	require.NoError(t, err)

	upd, err := progress.CreateUpdate(ctx, &models.ProgressUpdate{
		ProjectID:            "project-1",
		Title:                "Framing done",
		CompletionPercentage: 40,
		CreatedBy:            "contractor-1",
	})
	require.NoError(t, err)

	ms, err := progress.AddMilestone(ctx, &models.MilestoneUpdate{
		ProgressUpdateID: upd.ID,
		MilestoneName:    "Framing",
	})
	require.NoError(t, err)

	completed, err := progress.CompleteMilestone(ctx, ms.ID, "passed inspection")
	require.NoError(t, err)
	assert.True(t, completed.IsCompleted)
	require.NotNil(t, completed.CompletedAt)

	assert.Eventually(t, func() bool {
		return notifier.count(notify.EventMilestoneUpdate) == 2
	}, time.Second, 10*time.Millisecond, "one event per recipient")

	reloaded, err := schedules.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastSentAt, "milestone completion advances the schedule")

	// Completing an already-completed milestone is a no-op.
	_, err = progress.CompleteMilestone(ctx, ms.ID, "")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, notifier.count(notify.EventMilestoneUpdate))
}

func TestShareWithClientFansOutNotifications(t *testing.T) {
	st := store.NewMemory()
	progress, schedules, notifier := newProgressServiceForTest(t, st)
	ctx := context.Background()

	// Two schedules sharing a recipient: the fan-out must dedupe.
	_, err := schedules.CreateSchedule(ctx, &models.ScheduledUpdate{
		ProjectID:    "project-1",
		Frequency:    models.FreqWeekly,
		RecipientIDs: []string{"client-1", "client-2"},
	})
	require.NoError(t, err)
	_, err = schedules.CreateSchedule(ctx, &models.ScheduledUpdate{
		ProjectID:    "project-1",
		Frequency:    models.FreqMonthly,
		RecipientIDs: []string{"client-2"},
	})
	require.NoError(t, err)

	upd, err := progress.CreateUpdate(ctx, &models.ProgressUpdate{
		ProjectID:            "project-1",
		Title:                "Roofing started",
		CompletionPercentage: 55,
		CreatedBy:            "contractor-1",
	})
	require.NoError(t, err)

	shared, err := progress.ShareWithClient(ctx, upd.ID)
	require.NoError(t, err)
	assert.True(t, shared.IsSharedWithClient)

	assert.Eventually(t, func() bool {
		return notifier.count(notify.EventScheduledUpdate) == 2
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		records, err := st.ListNotificationsByUpdate(ctx, upd.ID)
		if err != nil || len(records) != 2 {
			return false
		}
		for _, r := range records {
			if r.DeliveryStatus != models.DeliverySent {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "delivery outcome recorded asynchronously")
}
