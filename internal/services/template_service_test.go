package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

func newTemplateServiceForTest(t *testing.T, st store.Store) *TemplateService {
	t.Helper()
	return NewTemplateService(st, zaptest.NewLogger(t), metrics.NewMetricsCollector())
}

func seedTemplate(t *testing.T, svc *TemplateService, fieldCount int) *models.SignableDocument {
	t.Helper()
	ctx := context.Background()

	tmpl, err := svc.CreateDocument(ctx, "Standard contract", "base terms", "blob://templates/contract.pdf", models.DocContract, "contractor-1", true)
	require.NoError(t, err)

	for i := 0; i < fieldCount; i++ {
		_, err := svc.AddField(ctx, &models.SignatureField{
			DocumentID: tmpl.ID,
			FieldType:  models.FieldSignature,
			PageNumber: i + 1,
			X:          0.1,
			Y:          0.8,
			Width:      0.3,
			Height:     0.05,
			IsRequired: true,
		})
		require.NoError(t, err)
	}
	return tmpl
}

func TestCloneFromTemplateDeepCopiesFields(t *testing.T) {
	st := store.NewMemory()
	svc := newTemplateServiceForTest(t, st)
	tmpl := seedTemplate(t, svc, 3)
	ctx := context.Background()

	clone, err := svc.CloneFromTemplate(ctx, tmpl.ID, "Smith residence contract", "contractor-1")
	require.NoError(t, err)

	assert.NotEqual(t, tmpl.ID, clone.ID)
	assert.False(t, clone.IsTemplate)
	assert.Equal(t, "Smith residence contract", clone.Title)
	assert.Equal(t, tmpl.ContentRef, clone.ContentRef)

	cloneFields, err := st.ListFields(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, cloneFields, 3)

	templateFields, err := st.ListFields(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, templateFields, 3, "template layout must be untouched")

	templateIDs := make(map[string]bool)
	for _, f := range templateFields {
		templateIDs[f.ID] = true
		assert.Equal(t, tmpl.ID, f.DocumentID)
	}
	for _, f := range cloneFields {
		assert.False(t, templateIDs[f.ID], "cloned field must have a fresh id")
		assert.Equal(t, clone.ID, f.DocumentID)
	}
}

func TestCloneFromTemplateRejectsNonTemplate(t *testing.T) {
	st := store.NewMemory()
	svc := newTemplateServiceForTest(t, st)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Plain doc", "", "blob://docs/plain.pdf", models.DocOther, "u1", false)
	require.NoError(t, err)

	_, err = svc.CloneFromTemplate(ctx, doc.ID, "copy", "u1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// fieldFailingStore fails InsertField after a number of successes to exercise
// the clone rollback path.
type fieldFailingStore struct {
	store.Store
	failAfter int
	inserted  int
}

func (s *fieldFailingStore) InsertField(ctx context.Context, field *models.SignatureField) error {
	if s.inserted >= s.failAfter {
		return errors.New("write rejected")
	}
	s.inserted++
	return s.Store.InsertField(ctx, field)
}

func TestCloneFromTemplateRollsBackOnPartialFailure(t *testing.T) {
	memory := store.NewMemory()
	buildSvc := newTemplateServiceForTest(t, memory)
	tmpl := seedTemplate(t, buildSvc, 3)
	ctx := context.Background()

	failing := &fieldFailingStore{Store: memory, failAfter: 2}
	svc := newTemplateServiceForTest(t, failing)

	_, err := svc.CloneFromTemplate(ctx, tmpl.ID, "doomed clone", "contractor-1")
	require.ErrorIs(t, err, apperror.ErrPersistence)

	// Only the template survives; nothing from the aborted clone is visible.
	docs, err := memory.ListDocuments(ctx, store.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, tmpl.ID, docs[0].ID)

	templateFields, err := memory.ListFields(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, templateFields, 3)
}

func TestAddFieldValidation(t *testing.T) {
	st := store.NewMemory()
	svc := newTemplateServiceForTest(t, st)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Doc", "", "blob://docs/d.pdf", models.DocOther, "u1", false)
	require.NoError(t, err)

	_, err = svc.AddField(ctx, &models.SignatureField{DocumentID: doc.ID, FieldType: models.FieldText, PageNumber: 1, X: -0.1})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.AddField(ctx, &models.SignatureField{DocumentID: "missing", FieldType: models.FieldText, PageNumber: 1})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteDocumentCascadesFields(t *testing.T) {
	st := store.NewMemory()
	svc := newTemplateServiceForTest(t, st)
	tmpl := seedTemplate(t, svc, 2)
	ctx := context.Background()

	require.NoError(t, svc.DeleteDocument(ctx, tmpl.ID))

	_, err := st.GetDocument(ctx, tmpl.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	fields, err := st.ListFields(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, fields)
}
