package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/services"
	"github.com/clientbridge/engagement/internal/store"
)

type SignatureHandler struct {
	signatures *services.SignatureService
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewSignatureHandler(signatures *services.SignatureService, validate *validator.Validate, logger *zap.Logger) *SignatureHandler {
	return &SignatureHandler{
		signatures: signatures,
		validate:   validate,
		logger:     logger.With(zap.String("handler", "signature")),
	}
}

type createRequestRequest struct {
	DocumentID    string `json:"documentId" validate:"required"`
	DocumentType  string `json:"documentType"`
	RequestedBy   string `json:"requestedBy" validate:"required"`
	RequestedFrom string `json:"requestedFrom" validate:"required"`
	Message       string `json:"message"`
	// Nil means "use the 14-day default"; an explicit 0 disables expiration.
	ExpiresInDays *int `json:"expiresInDays"`
}

func (h *SignatureHandler) CreateRequest(c *gin.Context) {
	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	expiresInDays := req.ExpiresInDays
	if expiresInDays == nil {
		d := 14
		expiresInDays = &d
	} else if *expiresInDays == 0 {
		expiresInDays = nil
	} else if *expiresInDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresInDays must not be negative"})
		return
	}

	docType := models.DocumentType(req.DocumentType)
	if docType == "" {
		docType = models.DocOther
	}
	created, err := h.signatures.CreateRequest(c.Request.Context(), req.DocumentID, docType, req.RequestedBy, req.RequestedFrom, req.Message, expiresInDays)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *SignatureHandler) GetRequest(c *gin.Context) {
	req, err := h.signatures.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *SignatureHandler) ListRequests(c *gin.Context) {
	filter := store.RequestFilter{
		DocumentID:    c.Query("documentId"),
		RequestedFrom: c.Query("requestedFrom"),
	}
	if status := c.Query("status"); status != "" {
		filter.Statuses = []models.RequestStatus{models.RequestStatus(status)}
	}
	reqs, err := h.signatures.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *SignatureHandler) RecordView(c *gin.Context) {
	req, err := h.signatures.RecordView(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type completeRequestRequest struct {
	SignatureImageRef string `json:"signatureImageRef" validate:"required"`
	IPAddress         string `json:"ipAddress"`
	DeviceInfo        string `json:"deviceInfo"`
	GeoLocation       string `json:"geoLocation"`
}

func (h *SignatureHandler) CompleteRequest(c *gin.Context) {
	var req completeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	updated, err := h.signatures.CompleteRequest(c.Request.Context(), c.Param("id"), &models.DigitalSignature{
		SignatureImageRef: req.SignatureImageRef,
		IPAddress:         req.IPAddress,
		DeviceInfo:        req.DeviceInfo,
		GeoLocation:       req.GeoLocation,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *SignatureHandler) DeclineRequest(c *gin.Context) {
	req, err := h.signatures.DeclineRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *SignatureHandler) CancelRequest(c *gin.Context) {
	req, err := h.signatures.CancelRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *SignatureHandler) SendReminder(c *gin.Context) {
	sent, err := h.signatures.SendReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func (h *SignatureHandler) GetSignature(c *gin.Context) {
	sig, err := h.signatures.GetSignature(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

type invalidateSignatureRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *SignatureHandler) InvalidateSignature(c *gin.Context) {
	var req invalidateSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	sig, err := h.signatures.InvalidateSignature(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}
