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

// TemplateService manages signable documents, their field layouts, and
// template cloning.
type TemplateService struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
	now     func() time.Time
}

func NewTemplateService(st store.Store, logger *zap.Logger, mc *metrics.MetricsCollector) *TemplateService {
	return &TemplateService{
		store:   st,
		logger:  logger.With(zap.String("service", "template_service")),
		metrics: mc,
		now:     time.Now,
	}
}

// CreateDocument registers a new signable document (or template when
// isTemplate is set) around an uploaded content reference.
func (s *TemplateService) CreateDocument(ctx context.Context, title, description, contentRef string, docType models.DocumentType, createdBy string, isTemplate bool) (*models.SignableDocument, error) {
	if title == "" {
		return nil, apperror.Validation("document title is required")
	}
	if contentRef == "" {
		return nil, apperror.Validation("document content reference is required")
	}

	now := s.now()
	doc := &models.SignableDocument{
		ID:           uuid.New().String(),
		Title:        title,
		Description:  description,
		ContentRef:   contentRef,
		DocumentType: docType,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsTemplate:   isTemplate,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("documents_created", nil)
	return doc, nil
}

func (s *TemplateService) GetDocument(ctx context.Context, id string) (*models.SignableDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFields(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.SignatureFields = fields
	return doc, nil
}

func (s *TemplateService) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.SignableDocument, error) {
	return s.store.ListDocuments(ctx, filter)
}

// UpdateDocumentMeta edits title/description only; content and layout are
// immutable after creation.
func (s *TemplateService) UpdateDocumentMeta(ctx context.Context, id, title, description string) (*models.SignableDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != "" {
		doc.Title = title
	}
	if description != "" {
		doc.Description = description
	}
	doc.UpdatedAt = s.now()
	if err := s.store.ReplaceDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// AddField places a field on a document page. Geometry is normalized
// page-relative; negative values are rejected.
func (s *TemplateService) AddField(ctx context.Context, field *models.SignatureField) (*models.SignatureField, error) {
	if field.X < 0 || field.Y < 0 || field.Width < 0 || field.Height < 0 {
		return nil, apperror.Validation("field geometry must be non-negative")
	}
	if field.PageNumber < 1 {
		return nil, apperror.Validation("field page number must be at least 1")
	}
	if _, err := s.store.GetDocument(ctx, field.DocumentID); err != nil {
		return nil, err
	}

	if field.ID == "" {
		field.ID = uuid.New().String()
	}
	if err := s.store.InsertField(ctx, field); err != nil {
		return nil, err
	}
	return field, nil
}

// DeleteDocument removes a document and cascades to its fields.
func (s *TemplateService) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteFieldsByDocument(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteDocument(ctx, id)
}

// CloneFromTemplate deep-copies a template and its field layout into a fresh
// signable document. The clone is all-or-nothing: any failure rolls back the
// document and every field written so far, so a partially-cloned document is
// never visible.
func (s *TemplateService) CloneFromTemplate(ctx context.Context, templateID, title, createdBy string) (*models.SignableDocument, error) {
	template, err := s.store.GetDocument(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !template.IsTemplate {
		return nil, apperror.NotFound("template %s", templateID)
	}

	templateFields, err := s.store.ListFields(ctx, templateID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := &models.SignableDocument{
		ID:           uuid.New().String(),
		Title:        title,
		Description:  template.Description,
		ContentRef:   template.ContentRef,
		DocumentType: template.DocumentType,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsTemplate:   false,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	copied := make([]models.SignatureField, 0, len(templateFields))
	for _, tf := range templateFields {
		field := tf
		field.ID = uuid.New().String()
		field.DocumentID = doc.ID
		if err := s.store.InsertField(ctx, &field); err != nil {
			s.rollbackClone(ctx, doc.ID, copied)
			return nil, apperror.Persistence(err, "clone template %s", templateID)
		}
		copied = append(copied, field)
	}

	doc.SignatureFields = copied
	s.metrics.IncrementCounter("templates_cloned", nil)
	s.logger.Info("Template cloned",
		zap.String("template_id", templateID),
		zap.String("document_id", doc.ID),
		zap.Int("fields", len(copied)))
	return doc, nil
}

func (s *TemplateService) rollbackClone(ctx context.Context, documentID string, copied []models.SignatureField) {
	for _, f := range copied {
		if err := s.store.DeleteField(ctx, f.ID); err != nil {
			s.logger.Error("Clone rollback failed to delete field",
				zap.String("field_id", f.ID), zap.Error(err))
		}
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		s.logger.Error("Clone rollback failed to delete document",
			zap.String("document_id", documentID), zap.Error(err))
	}
}
