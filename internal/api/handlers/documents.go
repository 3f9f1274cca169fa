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

type DocumentHandler struct {
	templates *services.TemplateService
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewDocumentHandler(templates *services.TemplateService, validate *validator.Validate, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		templates: templates,
		validate:  validate,
		logger:    logger.With(zap.String("handler", "document")),
	}
}

type createDocumentRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ContentRef  string `json:"contentRef" validate:"required"`
	DocumentType string `json:"documentType"`
	CreatedBy   string `json:"createdBy" validate:"required"`
	IsTemplate  bool   `json:"isTemplate"`
}

func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	docType := models.DocumentType(req.DocumentType)
	if docType == "" {
		docType = models.DocOther
	}
	doc, err := h.templates.CreateDocument(c.Request.Context(), req.Title, req.Description, req.ContentRef, docType, req.CreatedBy, req.IsTemplate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.templates.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	filter := store.DocumentFilter{
		CreatedBy:     c.Query("createdBy"),
		TemplatesOnly: c.Query("templates") == "true",
	}
	docs, err := h.templates.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type updateDocumentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	doc, err := h.templates.UpdateDocumentMeta(c.Request.Context(), c.Param("id"), req.Title, req.Description)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.templates.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addFieldRequest struct {
	FieldType  string  `json:"fieldType" validate:"required"`
	PageNumber int     `json:"pageNumber" validate:"required,min=1"`
	X          float64 `json:"x" validate:"gte=0"`
	Y          float64 `json:"y" validate:"gte=0"`
	Width      float64 `json:"width" validate:"gte=0"`
	Height     float64 `json:"height" validate:"gte=0"`
	IsRequired bool    `json:"isRequired"`
	Label      string  `json:"label"`
	AssignedTo string  `json:"assignedTo"`
}

func (h *DocumentHandler) AddField(c *gin.Context) {
	var req addFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	field, err := h.templates.AddField(c.Request.Context(), &models.SignatureField{
		DocumentID: c.Param("id"),
		FieldType:  models.FieldType(req.FieldType),
		PageNumber: req.PageNumber,
		X:          req.X,
		Y:          req.Y,
		Width:      req.Width,
		Height:     req.Height,
		IsRequired: req.IsRequired,
		Label:      req.Label,
		AssignedTo: req.AssignedTo,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, field)
}

type cloneTemplateRequest struct {
	Title     string `json:"title" validate:"required"`
	CreatedBy string `json:"createdBy" validate:"required"`
}

func (h *DocumentHandler) CloneTemplate(c *gin.Context) {
	var req cloneTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	doc, err := h.templates.CloneFromTemplate(c.Request.Context(), c.Param("id"), req.Title, req.CreatedBy)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
