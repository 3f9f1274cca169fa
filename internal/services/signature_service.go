package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/metrics"
)

// openStates are the only legal source states for user- and system-driven
// transitions.
var openStates = []models.RequestStatus{models.RequestPending, models.RequestViewed}

// SignatureService owns the signing lifecycle for signature requests. Every
// transition goes through the store's conditional write, so concurrent
// transitions fail instead of overwriting each other.
type SignatureService struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
	now     func() time.Time
}

func NewSignatureService(st store.Store, logger *zap.Logger, mc *metrics.MetricsCollector) *SignatureService {
	return &SignatureService{
		store:   st,
		logger:  logger.With(zap.String("service", "signature_service")),
		metrics: mc,
		now:     time.Now,
	}
}

// CreateRequest opens a PENDING request for a document. expiresInDays of nil
// means the request never expires. Requests against templates are rejected;
// templates are cloning sources, never signed.
func (s *SignatureService) CreateRequest(ctx context.Context, documentID string, docType models.DocumentType, requestedBy, requestedFrom, message string, expiresInDays *int) (*models.SignatureRequest, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsTemplate {
		return nil, apperror.Validation("document %s is a template and cannot be signed", documentID)
	}

	// Uniqueness of active requests per (document, signer) is a caller
	// convention, not enforced here; surface duplicates in the log.
	existing, err := s.store.ListRequests(ctx, store.RequestFilter{
		DocumentID:    documentID,
		RequestedFrom: requestedFrom,
		Statuses:      openStates,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		s.logger.Warn("Active signature request already exists for signer",
			zap.String("document_id", documentID),
			zap.String("requested_from", requestedFrom),
			zap.Int("active_count", len(existing)))
	}

	now := s.now()
	req := &models.SignatureRequest{
		ID:            uuid.New().String(),
		DocumentID:    documentID,
		DocumentType:  docType,
		RequestedBy:   requestedBy,
		RequestedFrom: requestedFrom,
		RequestedAt:   now,
		Status:        models.RequestPending,
		Message:       message,
	}
	if expiresInDays != nil {
		expires := now.Add(time.Duration(*expiresInDays) * 24 * time.Hour)
		req.ExpiresAt = &expires
	}

	if err := s.store.InsertRequest(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("signature_requests_created", nil)
	s.logger.Info("Signature request created",
		zap.String("request_id", req.ID),
		zap.String("document_id", documentID),
		zap.String("requested_from", requestedFrom))
	return req, nil
}

func (s *SignatureService) GetRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	return s.store.GetRequest(ctx, id)
}

func (s *SignatureService) ListRequests(ctx context.Context, filter store.RequestFilter) ([]models.SignatureRequest, error) {
	return s.store.ListRequests(ctx, filter)
}

// RecordView marks a request as seen by the signer. Calling it again once
// VIEWED is an idempotent no-op; calling it on a terminal request fails.
func (s *SignatureService) RecordView(ctx context.Context, requestID string) (*models.SignatureRequest, error) {
	return s.store.TransitionRequest(ctx, requestID, openStates, func(req *models.SignatureRequest) {
		req.Status = models.RequestViewed
	})
}

// CompleteRequest records the digital signature and moves the request to
// COMPLETED. The conditional transition guarantees a single winner, so one
// request can never end up with two signature records.
func (s *SignatureService) CompleteRequest(ctx context.Context, requestID string, sig *models.DigitalSignature) (*models.SignatureRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperror.InvalidState("signature request %s is %s", requestID, req.Status)
	}

	now := s.now()
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.SignedAt.IsZero() {
		sig.SignedAt = now
	}
	if sig.SignedBy == "" {
		sig.SignedBy = req.RequestedFrom
	}
	sig.DocumentID = req.DocumentID
	sig.DocumentType = req.DocumentType
	sig.IsValid = true

	if err := s.store.InsertSignature(ctx, sig); err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionRequest(ctx, requestID, openStates, func(r *models.SignatureRequest) {
		r.Status = models.RequestCompleted
		r.CompletedAt = &now
		r.SignatureID = sig.ID
	})
	if err != nil {
		// Lost the race (or the request went terminal): the signature record
		// must not survive as an orphan.
		if derr := s.store.DeleteSignature(ctx, sig.ID); derr != nil {
			s.logger.Error("Failed to roll back orphaned signature",
				zap.String("signature_id", sig.ID), zap.Error(derr))
		}
		return nil, err
	}

	s.metrics.IncrementCounter("signature_requests_completed", nil)
	s.logger.Info("Signature request completed",
		zap.String("request_id", requestID),
		zap.String("signature_id", sig.ID))
	return updated, nil
}

// DeclineRequest moves an open request to DECLINED on the signer's behalf.
func (s *SignatureService) DeclineRequest(ctx context.Context, requestID string) (*models.SignatureRequest, error) {
	now := s.now()
	req, err := s.store.TransitionRequest(ctx, requestID, openStates, func(r *models.SignatureRequest) {
		r.Status = models.RequestDeclined
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter("signature_requests_declined", nil)
	return req, nil
}

// CancelRequest withdraws an open request on the requester's behalf.
func (s *SignatureService) CancelRequest(ctx context.Context, requestID string) (*models.SignatureRequest, error) {
	now := s.now()
	req, err := s.store.TransitionRequest(ctx, requestID, openStates, func(r *models.SignatureRequest) {
		r.Status = models.RequestCancelled
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter("signature_requests_cancelled", nil)
	return req, nil
}

// SendReminder stamps the reminder counters in one conditional write. A
// terminal request yields (false, nil) so sweep callers can skip it without
// treating it as a failure.
func (s *SignatureService) SendReminder(ctx context.Context, requestID string) (bool, error) {
	now := s.now()
	_, err := s.store.TransitionRequest(ctx, requestID, openStates, func(r *models.SignatureRequest) {
		r.RemindersSent++
		r.LastReminderSent = &now
	})
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidState) {
			return false, nil
		}
		return false, err
	}
	s.metrics.IncrementCounter("signature_reminders_sent", nil)
	return true, nil
}

// Expire moves an open request past its deadline to EXPIRED. It is
// system-driven: callers only invoke it once now is past ExpiresAt.
func (s *SignatureService) Expire(ctx context.Context, requestID string, now time.Time) (*models.SignatureRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ExpiresAt == nil || !now.After(*req.ExpiresAt) {
		return nil, apperror.InvalidState("signature request %s is not past its expiration", requestID)
	}

	updated, err := s.store.TransitionRequest(ctx, requestID, openStates, func(r *models.SignatureRequest) {
		r.Status = models.RequestExpired
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter("signature_requests_expired", nil)
	s.logger.Info("Signature request expired", zap.String("request_id", requestID))
	return updated, nil
}

func (s *SignatureService) GetSignature(ctx context.Context, id string) (*models.DigitalSignature, error) {
	return s.store.GetSignature(ctx, id)
}

// InvalidateSignature revokes a completed signature out of band. The owning
// request keeps its terminal status; validity and lifecycle are orthogonal.
func (s *SignatureService) InvalidateSignature(ctx context.Context, signatureID, reason string) (*models.DigitalSignature, error) {
	sig, err := s.store.GetSignature(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if !sig.IsValid {
		return sig, nil
	}

	now := s.now()
	sig.IsValid = false
	sig.InvalidatedAt = &now
	sig.InvalidationReason = reason
	if err := s.store.ReplaceSignature(ctx, sig); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("signatures_invalidated", nil)
	s.logger.Warn("Signature invalidated",
		zap.String("signature_id", signatureID),
		zap.String("reason", reason))
	return sig, nil
}
