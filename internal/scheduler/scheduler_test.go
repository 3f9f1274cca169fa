package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/config"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/notify"
	"github.com/clientbridge/engagement/internal/services"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

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

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		PollInterval:        time.Hour,
		ReminderEvery:       72 * time.Hour,
		ExpiryWarningWindow: 24 * time.Hour,
		DefaultSendTime:     "09:00",
	}
}

func newSchedulerForTest(t *testing.T, st store.Store, now time.Time) (*Scheduler, *recordingNotifier) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mc := metrics.NewMetricsCollector()
	notifier := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(st, notifier, logger)
	signatures := services.NewSignatureService(st, logger, mc)
	schedules := services.NewScheduleService(st, logger, mc, "09:00")

	s := New(testConfig(), st, signatures, schedules, dispatcher, logger, mc)
	s.now = func() time.Time { return now }
	return s, notifier
}

// t0 is in the past relative to the wall clock so reminder stamps written
// with real time always land after the virtual sweep time.
var t0 = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func seedRequest(t *testing.T, st store.Store, id string, expiresAt, lastReminder *time.Time) {
	t.Helper()
	req := &models.SignatureRequest{
		ID:               id,
		DocumentID:       "doc-1",
		DocumentType:     models.DocContract,
		RequestedBy:      "contractor-1",
		RequestedFrom:    "client-1",
		RequestedAt:      t0,
		ExpiresAt:        expiresAt,
		Status:           models.RequestPending,
		LastReminderSent: lastReminder,
	}
	require.NoError(t, st.InsertRequest(context.Background(), req))
}

func TestSweepWarnsThenExpires(t *testing.T) {
	st := store.NewMemory()
	expiresAt := t0.Add(14 * 24 * time.Hour)
	lastReminder := t0.Add(13 * 24 * time.Hour)
	seedRequest(t, st, "req-1", &expiresAt, &lastReminder)
	ctx := context.Background()

	// 13d23h in: one hour left of the 24h warning window, not yet expired.
	s, notifier := newSchedulerForTest(t, st, t0.Add(13*24*time.Hour+23*time.Hour))
	report := s.Sweep(ctx)
	assert.Equal(t, 1, report.WarningsSent)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, 0, report.Failures)

	req, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	assert.Eventually(t, func() bool {
		return notifier.count(notify.EventExpirationWarning) == 1
	}, time.Second, 10*time.Millisecond)

	// 14d1h in: past the deadline, the sweep expires the request.
	s.now = func() time.Time { return t0.Add(14*24*time.Hour + time.Hour) }
	report = s.Sweep(ctx)
	assert.Equal(t, 1, report.Expired)

	req, err = st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, req.Status)

	// Terminal requests drop out of the open set: nothing more is emitted.
	report = s.Sweep(ctx)
	assert.Equal(t, SweepReport{}, report)
}

func TestSweepSendsReminderAfterQuietPeriod(t *testing.T) {
	st := store.NewMemory()
	seedRequest(t, st, "req-1", nil, nil)
	ctx := context.Background()

	s, notifier := newSchedulerForTest(t, st, t0.Add(4*24*time.Hour))
	report := s.Sweep(ctx)
	assert.Equal(t, 1, report.RemindersSent)

	req, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, req.RemindersSent)
	require.NotNil(t, req.LastReminderSent)

	assert.Eventually(t, func() bool {
		return notifier.count(notify.EventSignatureReminder) == 1
	}, time.Second, 10*time.Millisecond)

	// Freshly reminded: the next sweep stays quiet.
	report = s.Sweep(ctx)
	assert.Equal(t, 0, report.RemindersSent)
}

func TestSweepSkipsRecentlyTouchedRequests(t *testing.T) {
	st := store.NewMemory()
	seedRequest(t, st, "req-1", nil, nil)

	s, _ := newSchedulerForTest(t, st, t0.Add(48*time.Hour))
	report := s.Sweep(context.Background())
	assert.Equal(t, 0, report.RemindersSent)
}

func TestSweepSendsDueScheduledUpdates(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	next := t0
	require.NoError(t, st.InsertSchedule(ctx, &models.ScheduledUpdate{
		ID:              "sched-1",
		ProjectID:       "project-1",
		Frequency:       models.FreqDaily,
		IsActive:        true,
		NextScheduledAt: &next,
		RecipientIDs:    []string{"client-1"},
	}))
	require.NoError(t, st.InsertProgressUpdate(ctx, &models.ProgressUpdate{
		ID:                 "upd-1",
		ProjectID:          "project-1",
		Title:              "Week 3 progress",
		IsSharedWithClient: true,
		CreatedAt:          t0.Add(-24 * time.Hour),
		CreatedBy:          "contractor-1",
	}))

	now := t0.Add(time.Hour)
	s, notifier := newSchedulerForTest(t, st, now)
	report := s.Sweep(ctx)
	assert.Equal(t, 1, report.UpdatesSent)
	assert.Equal(t, 0, report.Failures)

	sched, err := st.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, sched.LastSentAt)
	assert.Equal(t, now, *sched.LastSentAt)
	require.NotNil(t, sched.NextScheduledAt)
	assert.True(t, sched.NextScheduledAt.After(now), "recomputed next occurrence is in the future")

	assert.Eventually(t, func() bool {
		return notifier.count(notify.EventScheduledUpdate) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		records, err := st.ListNotificationsByUpdate(ctx, "upd-1")
		return err == nil && len(records) == 1 && records[0].DeliveryStatus == models.DeliverySent
	}, time.Second, 10*time.Millisecond)

	// Already advanced: a second sweep finds nothing due.
	report = s.Sweep(ctx)
	assert.Equal(t, 0, report.UpdatesSent)
}

func TestSweepIsNotReentrant(t *testing.T) {
	s, _ := newSchedulerForTest(t, store.NewMemory(), t0)

	s.sweeping.Store(true)
	report := s.Sweep(context.Background())
	assert.True(t, report.Skipped)

	s.sweeping.Store(false)
	report = s.Sweep(context.Background())
	assert.False(t, report.Skipped)
}

// transitionFailingStore fails transitions for one request id to exercise
// per-entity failure isolation.
type transitionFailingStore struct {
	store.Store
	failID string
}

func (s *transitionFailingStore) TransitionRequest(ctx context.Context, id string, from []models.RequestStatus, apply func(*models.SignatureRequest)) (*models.SignatureRequest, error) {
	if id == s.failID {
		return nil, apperror.Persistence(context.DeadlineExceeded, "transition %s", id)
	}
	return s.Store.TransitionRequest(ctx, id, from, apply)
}

func TestSweepIsolatesPerEntityFailures(t *testing.T) {
	memory := store.NewMemory()
	expired := t0.Add(24 * time.Hour)
	seedRequest(t, memory, "req-bad", &expired, nil)
	seedRequest(t, memory, "req-good", &expired, nil)

	failing := &transitionFailingStore{Store: memory, failID: "req-bad"}
	s, _ := newSchedulerForTest(t, failing, t0.Add(48*time.Hour))

	report := s.Sweep(context.Background())
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 1, report.Expired)

	good, err := memory.GetRequest(context.Background(), "req-good")
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, good.Status)
}

func TestStartRunsSweepsUntilStopped(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	next := t0
	require.NoError(t, st.InsertSchedule(ctx, &models.ScheduledUpdate{
		ID:              "sched-1",
		ProjectID:       "project-1",
		Frequency:       models.FreqDaily,
		IsActive:        true,
		NextScheduledAt: &next,
		RecipientIDs:    []string{"client-1"},
	}))

	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	logger := zaptest.NewLogger(t)
	mc := metrics.NewMetricsCollector()
	notifier := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(st, notifier, logger)
	signatures := services.NewSignatureService(st, logger, mc)
	schedules := services.NewScheduleService(st, logger, mc, "09:00")
	s := New(cfg, st, signatures, schedules, dispatcher, logger, mc)
	s.now = func() time.Time { return t0.Add(time.Hour) }

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()
	defer func() {
		s.Stop()
		<-done
	}()

	assert.Eventually(t, func() bool {
		sched, err := st.GetSchedule(ctx, "sched-1")
		return err == nil && sched.LastSentAt != nil
	}, time.Second, 10*time.Millisecond)
}
