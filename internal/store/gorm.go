package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
)

// Gorm is the postgres-backed entity store.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func wrapGet(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s %s", kind, id)
	}
	return apperror.Persistence(err, "get %s %s", kind, id)
}

func (s *Gorm) GetDocument(ctx context.Context, id string) (*models.SignableDocument, error) {
	var doc models.SignableDocument
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "document", id)
	}
	return &doc, nil
}

func (s *Gorm) ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.SignableDocument, error) {
	q := s.db.WithContext(ctx).Model(&models.SignableDocument{}).Order("created_at DESC")
	if filter.CreatedBy != "" {
		q = q.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.TemplatesOnly {
		q = q.Where("is_template = ?", true)
	}
	var docs []models.SignableDocument
	if err := q.Find(&docs).Error; err != nil {
		return nil, apperror.Persistence(err, "list documents")
	}
	return docs, nil
}

func (s *Gorm) InsertDocument(ctx context.Context, doc *models.SignableDocument) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return apperror.Persistence(err, "insert document %s", doc.ID)
	}
	return nil
}

func (s *Gorm) ReplaceDocument(ctx context.Context, doc *models.SignableDocument) error {
	res := s.db.WithContext(ctx).Model(&models.SignableDocument{}).
		Where("id = ?", doc.ID).
		Select("*").Omit("id", "created_at").Updates(doc)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace document %s", doc.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("document %s", doc.ID)
	}
	return nil
}

func (s *Gorm) DeleteDocument(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.SignableDocument{}, "id = ?", id).Error; err != nil {
		return apperror.Persistence(err, "delete document %s", id)
	}
	return nil
}

func (s *Gorm) ListFields(ctx context.Context, documentID string) ([]models.SignatureField, error) {
	var fields []models.SignatureField
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("page_number, y, x").
		Find(&fields).Error; err != nil {
		return nil, apperror.Persistence(err, "list fields for document %s", documentID)
	}
	return fields, nil
}

func (s *Gorm) InsertField(ctx context.Context, field *models.SignatureField) error {
	if err := s.db.WithContext(ctx).Create(field).Error; err != nil {
		return apperror.Persistence(err, "insert field %s", field.ID)
	}
	return nil
}

func (s *Gorm) DeleteField(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.SignatureField{}, "id = ?", id).Error; err != nil {
		return apperror.Persistence(err, "delete field %s", id)
	}
	return nil
}

func (s *Gorm) DeleteFieldsByDocument(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).
		Delete(&models.SignatureField{}, "document_id = ?", documentID).Error; err != nil {
		return apperror.Persistence(err, "delete fields for document %s", documentID)
	}
	return nil
}

func (s *Gorm) GetRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "signature request", id)
	}
	return &req, nil
}

func (s *Gorm) ListRequests(ctx context.Context, filter RequestFilter) ([]models.SignatureRequest, error) {
	q := s.db.WithContext(ctx).Model(&models.SignatureRequest{}).Order("requested_at DESC")
	if filter.DocumentID != "" {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	if filter.RequestedFrom != "" {
		q = q.Where("requested_from = ?", filter.RequestedFrom)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	var reqs []models.SignatureRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, apperror.Persistence(err, "list signature requests")
	}
	return reqs, nil
}

func (s *Gorm) ListOpenRequests(ctx context.Context) ([]models.SignatureRequest, error) {
	return s.ListRequests(ctx, RequestFilter{
		Statuses: []models.RequestStatus{models.RequestPending, models.RequestViewed},
	})
}

func (s *Gorm) InsertRequest(ctx context.Context, req *models.SignatureRequest) error {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return apperror.Persistence(err, "insert signature request %s", req.ID)
	}
	return nil
}

func statusIn(status models.RequestStatus, set []models.RequestStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Gorm) TransitionRequest(ctx context.Context, id string, from []models.RequestStatus, apply func(*models.SignatureRequest)) (*models.SignatureRequest, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(req.Status, from) {
		return nil, apperror.InvalidState("signature request %s is %s", id, req.Status)
	}

	prev := req.Status
	apply(req)

	// Conditional write: only install the mutation if the status is still the
	// one we validated, so a concurrent transition fails instead of being
	// silently overwritten.
	res := s.db.WithContext(ctx).Model(&models.SignatureRequest{}).
		Where("id = ? AND status = ?", id, prev).
		Select("*").Omit("id", "requested_at").Updates(req)
	if res.Error != nil {
		return nil, apperror.Persistence(res.Error, "transition signature request %s", id)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.InvalidState("signature request %s changed concurrently", id)
	}
	return req, nil
}

func (s *Gorm) GetSignature(ctx context.Context, id string) (*models.DigitalSignature, error) {
	var sig models.DigitalSignature
	if err := s.db.WithContext(ctx).First(&sig, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "signature", id)
	}
	return &sig, nil
}

func (s *Gorm) InsertSignature(ctx context.Context, sig *models.DigitalSignature) error {
	if err := s.db.WithContext(ctx).Create(sig).Error; err != nil {
		return apperror.Persistence(err, "insert signature %s", sig.ID)
	}
	return nil
}

func (s *Gorm) ReplaceSignature(ctx context.Context, sig *models.DigitalSignature) error {
	res := s.db.WithContext(ctx).Model(&models.DigitalSignature{}).
		Where("id = ?", sig.ID).
		Select("*").Omit("id").Updates(sig)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace signature %s", sig.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("signature %s", sig.ID)
	}
	return nil
}

func (s *Gorm) DeleteSignature(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.DigitalSignature{}, "id = ?", id).Error; err != nil {
		return apperror.Persistence(err, "delete signature %s", id)
	}
	return nil
}

func (s *Gorm) GetSchedule(ctx context.Context, id string) (*models.ScheduledUpdate, error) {
	var sched models.ScheduledUpdate
	if err := s.db.WithContext(ctx).First(&sched, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "schedule", id)
	}
	return &sched, nil
}

func (s *Gorm) ListSchedulesByProject(ctx context.Context, projectID string) ([]models.ScheduledUpdate, error) {
	var scheds []models.ScheduledUpdate
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at").
		Find(&scheds).Error; err != nil {
		return nil, apperror.Persistence(err, "list schedules for project %s", projectID)
	}
	return scheds, nil
}

func (s *Gorm) ListDueSchedules(ctx context.Context, now time.Time) ([]models.ScheduledUpdate, error) {
	var scheds []models.ScheduledUpdate
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_scheduled_at IS NOT NULL AND next_scheduled_at <= ?", true, now).
		Find(&scheds).Error; err != nil {
		return nil, apperror.Persistence(err, "list due schedules")
	}
	return scheds, nil
}

func (s *Gorm) InsertSchedule(ctx context.Context, sched *models.ScheduledUpdate) error {
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return apperror.Persistence(err, "insert schedule %s", sched.ID)
	}
	return nil
}

func (s *Gorm) ReplaceSchedule(ctx context.Context, sched *models.ScheduledUpdate) error {
	res := s.db.WithContext(ctx).Model(&models.ScheduledUpdate{}).
		Where("id = ?", sched.ID).
		Select("*").Omit("id", "created_at").Updates(sched)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace schedule %s", sched.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("schedule %s", sched.ID)
	}
	return nil
}

func (s *Gorm) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.ScheduledUpdate{}, "id = ?", id).Error; err != nil {
		return apperror.Persistence(err, "delete schedule %s", id)
	}
	return nil
}

func (s *Gorm) GetProgressUpdate(ctx context.Context, id string) (*models.ProgressUpdate, error) {
	var upd models.ProgressUpdate
	if err := s.db.WithContext(ctx).First(&upd, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "progress update", id)
	}
	return &upd, nil
}

func (s *Gorm) ListProgressByProject(ctx context.Context, projectID string) ([]models.ProgressUpdate, error) {
	var upds []models.ProgressUpdate
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&upds).Error; err != nil {
		return nil, apperror.Persistence(err, "list progress updates for project %s", projectID)
	}
	return upds, nil
}

func (s *Gorm) LatestSharedUpdate(ctx context.Context, projectID string) (*models.ProgressUpdate, error) {
	var upd models.ProgressUpdate
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND is_shared_with_client = ?", projectID, true).
		Order("created_at DESC").
		First(&upd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("shared progress update for project %s", projectID)
		}
		return nil, apperror.Persistence(err, "latest shared update for project %s", projectID)
	}
	return &upd, nil
}

func (s *Gorm) InsertProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error {
	if err := s.db.WithContext(ctx).Create(upd).Error; err != nil {
		return apperror.Persistence(err, "insert progress update %s", upd.ID)
	}
	return nil
}

func (s *Gorm) ReplaceProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error {
	res := s.db.WithContext(ctx).Model(&models.ProgressUpdate{}).
		Where("id = ?", upd.ID).
		Select("*").Omit("id", "created_at").Updates(upd)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace progress update %s", upd.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("progress update %s", upd.ID)
	}
	return nil
}

func (s *Gorm) GetMilestone(ctx context.Context, id string) (*models.MilestoneUpdate, error) {
	var ms models.MilestoneUpdate
	if err := s.db.WithContext(ctx).First(&ms, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "milestone", id)
	}
	return &ms, nil
}

func (s *Gorm) ListMilestones(ctx context.Context, progressUpdateID string) ([]models.MilestoneUpdate, error) {
	var mss []models.MilestoneUpdate
	if err := s.db.WithContext(ctx).
		Where("progress_update_id = ?", progressUpdateID).
		Find(&mss).Error; err != nil {
		return nil, apperror.Persistence(err, "list milestones for update %s", progressUpdateID)
	}
	return mss, nil
}

func (s *Gorm) InsertMilestone(ctx context.Context, ms *models.MilestoneUpdate) error {
	if err := s.db.WithContext(ctx).Create(ms).Error; err != nil {
		return apperror.Persistence(err, "insert milestone %s", ms.ID)
	}
	return nil
}

func (s *Gorm) ReplaceMilestone(ctx context.Context, ms *models.MilestoneUpdate) error {
	res := s.db.WithContext(ctx).Model(&models.MilestoneUpdate{}).
		Where("id = ?", ms.ID).
		Select("*").Omit("id").Updates(ms)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace milestone %s", ms.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("milestone %s", ms.ID)
	}
	return nil
}

func (s *Gorm) GetNotification(ctx context.Context, id string) (*models.UpdateNotification, error) {
	var n models.UpdateNotification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, wrapGet(err, "notification", id)
	}
	return &n, nil
}

func (s *Gorm) ListNotificationsByUpdate(ctx context.Context, progressUpdateID string) ([]models.UpdateNotification, error) {
	var ns []models.UpdateNotification
	if err := s.db.WithContext(ctx).
		Where("progress_update_id = ?", progressUpdateID).
		Order("sent_at").
		Find(&ns).Error; err != nil {
		return nil, apperror.Persistence(err, "list notifications for update %s", progressUpdateID)
	}
	return ns, nil
}

func (s *Gorm) InsertNotification(ctx context.Context, n *models.UpdateNotification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return apperror.Persistence(err, "insert notification %s", n.ID)
	}
	return nil
}

func (s *Gorm) ReplaceNotification(ctx context.Context, n *models.UpdateNotification) error {
	res := s.db.WithContext(ctx).Model(&models.UpdateNotification{}).
		Where("id = ?", n.ID).
		Select("*").Omit("id").Updates(n)
	if res.Error != nil {
		return apperror.Persistence(res.Error, "replace notification %s", n.ID)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("notification %s", n.ID)
	}
	return nil
}
