package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

func newSignatureServiceForTest(t *testing.T, st store.Store) *SignatureService {
	t.Helper()
	return NewSignatureService(st, zaptest.NewLogger(t), metrics.NewMetricsCollector())
}

func seedDocument(t *testing.T, st store.Store, isTemplate bool) *models.SignableDocument {
	t.Helper()
	doc := &models.SignableDocument{
		ID:           "doc-1",
		Title:        "Kitchen remodel contract",
		ContentRef:   "blob://contracts/doc-1.pdf",
		DocumentType: models.DocContract,
		CreatedBy:    "contractor-1",
		IsTemplate:   isTemplate,
	}
	require.NoError(t, st.InsertDocument(context.Background(), doc))
	return doc
}

func TestCreateRequestSetsExpiry(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	t0 := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	seedDocument(t, st, false)

	days := 14
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "contractor-1", "client-1", "please sign", &days)
	require.NoError(t, err)

	assert.Equal(t, models.RequestPending, req.Status)
	require.NotNil(t, req.ExpiresAt)
	assert.Equal(t, t0.Add(14*24*time.Hour), *req.ExpiresAt)
	assert.Equal(t, 0, req.RemindersSent)
}

func TestCreateRequestWithoutExpiry(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)

	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "contractor-1", "client-1", "", nil)
	require.NoError(t, err)
	assert.Nil(t, req.ExpiresAt)
}

func TestCreateRequestMissingDocument(t *testing.T) {
	svc := newSignatureServiceForTest(t, store.NewMemory())

	_, err := svc.CreateRequest(context.Background(), "missing", models.DocContract, "a", "b", "", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateRequestRejectsTemplates(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, true)

	_, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "b", "", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRecordViewIsIdempotentFromViewed(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	viewed, err := svc.RecordView(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestViewed, viewed.Status)

	viewed, err = svc.RecordView(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestViewed, viewed.Status)
}

func TestRecordViewFailsFromTerminalState(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	_, err = svc.CancelRequest(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.RecordView(context.Background(), req.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

// signatureCountingStore counts signature record inserts and deletes so tests
// can check how many records survive.
type signatureCountingStore struct {
	store.Store
	inserts int
	deletes int
}

func (s *signatureCountingStore) InsertSignature(ctx context.Context, sig *models.DigitalSignature) error {
	s.inserts++
	return s.Store.InsertSignature(ctx, sig)
}

func (s *signatureCountingStore) DeleteSignature(ctx context.Context, id string) error {
	s.deletes++
	return s.Store.DeleteSignature(ctx, id)
}

func TestCompleteRequestCreatesSingleSignature(t *testing.T) {
	counting := &signatureCountingStore{Store: store.NewMemory()}
	svc := newSignatureServiceForTest(t, counting)
	seedDocument(t, counting, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	completed, err := svc.CompleteRequest(context.Background(), req.ID, &models.DigitalSignature{
		SignatureImageRef: "blob://signatures/sig-1.png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.NotEmpty(t, completed.SignatureID)

	sig, err := svc.GetSignature(context.Background(), completed.SignatureID)
	require.NoError(t, err)
	assert.True(t, sig.IsValid)
	assert.Equal(t, "client-1", sig.SignedBy)
	assert.Equal(t, "doc-1", sig.DocumentID)

	// Second completion must fail and must not leave a second record behind.
	_, err = svc.CompleteRequest(context.Background(), req.ID, &models.DigitalSignature{
		SignatureImageRef: "blob://signatures/sig-2.png",
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, 1, counting.inserts-counting.deletes,
		"exactly one signature record may survive")
}

func TestCompleteRequestRollsBackSignatureOnLostRace(t *testing.T) {
	counting := &signatureCountingStore{Store: store.NewMemory()}
	svc := newSignatureServiceForTest(t, counting)
	seedDocument(t, counting, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	_, err = svc.DeclineRequest(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.CompleteRequest(context.Background(), req.ID, &models.DigitalSignature{
		SignatureImageRef: "blob://signatures/sig-1.png",
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, 0, counting.inserts-counting.deletes)
}

func TestCancelOnlyFromOpenStates(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	cancelled, err := svc.CancelRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	_, err = svc.CancelRequest(context.Background(), req.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestSendReminderStampsBothFieldsTogether(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	now := time.Date(2026, time.June, 5, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)

	sent, err := svc.SendReminder(context.Background(), req.ID)
	require.NoError(t, err)
	assert.True(t, sent)

	reloaded, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.RemindersSent)
	require.NotNil(t, reloaded.LastReminderSent)
	assert.Equal(t, now, *reloaded.LastReminderSent)
}

func TestSendReminderOnTerminalRequestIsNoop(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)
	_, err = svc.CancelRequest(context.Background(), req.ID)
	require.NoError(t, err)

	sent, err := svc.SendReminder(context.Background(), req.ID)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestExpireRequiresDeadlinePassed(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	t0 := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	seedDocument(t, st, false)

	days := 14
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", &days)
	require.NoError(t, err)

	_, err = svc.Expire(context.Background(), req.ID, t0.Add(13*24*time.Hour))
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	expired, err := svc.Expire(context.Background(), req.ID, t0.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, expired.Status)
}

func TestInvalidateSignatureLeavesRequestCompleted(t *testing.T) {
	st := store.NewMemory()
	svc := newSignatureServiceForTest(t, st)
	seedDocument(t, st, false)
	req, err := svc.CreateRequest(context.Background(), "doc-1", models.DocContract, "a", "client-1", "", nil)
	require.NoError(t, err)
	completed, err := svc.CompleteRequest(context.Background(), req.ID, &models.DigitalSignature{
		SignatureImageRef: "blob://signatures/sig-1.png",
	})
	require.NoError(t, err)

	sig, err := svc.InvalidateSignature(context.Background(), completed.SignatureID, "fraud finding")
	require.NoError(t, err)
	assert.False(t, sig.IsValid)
	require.NotNil(t, sig.InvalidatedAt)
	assert.Equal(t, "fraud finding", sig.InvalidationReason)

	reloaded, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, reloaded.Status)
}
