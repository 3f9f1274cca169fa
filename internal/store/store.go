// Package store defines the entity-store abstraction the engagement engine is
// built against. Components receive a Store at construction; the gorm backend
// serves production and the memory backend serves tests and local runs.
package store

import (
	"context"
	"time"

	"github.com/clientbridge/engagement/internal/db/models"
)

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	DocumentID    string
	RequestedFrom string
	Statuses      []models.RequestStatus
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	CreatedBy    string
	TemplatesOnly bool
}

type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.SignableDocument, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.SignableDocument, error)
	InsertDocument(ctx context.Context, doc *models.SignableDocument) error
	ReplaceDocument(ctx context.Context, doc *models.SignableDocument) error
	DeleteDocument(ctx context.Context, id string) error

	ListFields(ctx context.Context, documentID string) ([]models.SignatureField, error)
	InsertField(ctx context.Context, field *models.SignatureField) error
	DeleteField(ctx context.Context, id string) error
	DeleteFieldsByDocument(ctx context.Context, documentID string) error
}

type RequestStore interface {
	GetRequest(ctx context.Context, id string) (*models.SignatureRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.SignatureRequest, error)
	// ListOpenRequests returns every request in a non-terminal status.
	ListOpenRequests(ctx context.Context) ([]models.SignatureRequest, error)
	InsertRequest(ctx context.Context, req *models.SignatureRequest) error
	// TransitionRequest performs a conditional write: it loads the request,
	// verifies the current status is one of from, applies the mutation, and
	// installs the result only if the status has not changed underneath.
	// A failed precondition or lost race yields apperror.ErrInvalidState.
	TransitionRequest(ctx context.Context, id string, from []models.RequestStatus, apply func(*models.SignatureRequest)) (*models.SignatureRequest, error)
}

type SignatureStore interface {
	GetSignature(ctx context.Context, id string) (*models.DigitalSignature, error)
	InsertSignature(ctx context.Context, sig *models.DigitalSignature) error
	ReplaceSignature(ctx context.Context, sig *models.DigitalSignature) error
	DeleteSignature(ctx context.Context, id string) error
}

type ScheduleStore interface {
	GetSchedule(ctx context.Context, id string) (*models.ScheduledUpdate, error)
	ListSchedulesByProject(ctx context.Context, projectID string) ([]models.ScheduledUpdate, error)
	// ListDueSchedules returns active schedules whose cached NextScheduledAt
	// is at or before now.
	ListDueSchedules(ctx context.Context, now time.Time) ([]models.ScheduledUpdate, error)
	InsertSchedule(ctx context.Context, sched *models.ScheduledUpdate) error
	ReplaceSchedule(ctx context.Context, sched *models.ScheduledUpdate) error
	DeleteSchedule(ctx context.Context, id string) error
}

type ProgressStore interface {
	GetProgressUpdate(ctx context.Context, id string) (*models.ProgressUpdate, error)
	ListProgressByProject(ctx context.Context, projectID string) ([]models.ProgressUpdate, error)
	// LatestSharedUpdate returns the most recent client-shared update for a
	// project, or apperror.ErrNotFound when none exists.
	LatestSharedUpdate(ctx context.Context, projectID string) (*models.ProgressUpdate, error)
	InsertProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error
	ReplaceProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error

	GetMilestone(ctx context.Context, id string) (*models.MilestoneUpdate, error)
	ListMilestones(ctx context.Context, progressUpdateID string) ([]models.MilestoneUpdate, error)
	InsertMilestone(ctx context.Context, ms *models.MilestoneUpdate) error
	ReplaceMilestone(ctx context.Context, ms *models.MilestoneUpdate) error
}

type NotificationStore interface {
	GetNotification(ctx context.Context, id string) (*models.UpdateNotification, error)
	ListNotificationsByUpdate(ctx context.Context, progressUpdateID string) ([]models.UpdateNotification, error)
	InsertNotification(ctx context.Context, n *models.UpdateNotification) error
	ReplaceNotification(ctx context.Context, n *models.UpdateNotification) error
}

// Store is the full entity-store surface.
type Store interface {
	DocumentStore
	RequestStore
	SignatureStore
	ScheduleStore
	ProgressStore
	NotificationStore
}
