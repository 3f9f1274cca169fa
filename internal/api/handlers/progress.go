package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/services"
)

type ProgressHandler struct {
	progress *services.ProgressService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProgressHandler(progress *services.ProgressService, validate *validator.Validate, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		validate: validate,
		logger:   logger.With(zap.String("handler", "progress")),
	}
}

type createUpdateRequest struct {
	ProjectID            string   `json:"projectId" validate:"required"`
	Title                string   `json:"title" validate:"required"`
	Description          string   `json:"description"`
	CompletionPercentage int      `json:"completionPercentage" validate:"min=0,max=100"`
	PhotoRefs            []string `json:"photoRefs"`
	CreatedBy            string   `json:"createdBy" validate:"required"`
}

func (h *ProgressHandler) CreateUpdate(c *gin.Context) {
	var req createUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	upd, err := h.progress.CreateUpdate(c.Request.Context(), &models.ProgressUpdate{
		ProjectID:            req.ProjectID,
		Title:                req.Title,
		Description:          req.Description,
		CompletionPercentage: req.CompletionPercentage,
		PhotoRefs:            req.PhotoRefs,
		CreatedBy:            req.CreatedBy,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, upd)
}

func (h *ProgressHandler) GetUpdate(c *gin.Context) {
	upd, err := h.progress.GetUpdate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, upd)
}

func (h *ProgressHandler) ListUpdates(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId query parameter is required"})
		return
	}
	upds, err := h.progress.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": upds})
}

type addMilestoneRequest struct {
	MilestoneName string `json:"milestoneName" validate:"required"`
	Notes         string `json:"notes"`
}

func (h *ProgressHandler) AddMilestone(c *gin.Context) {
	var req addMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	ms, err := h.progress.AddMilestone(c.Request.Context(), &models.MilestoneUpdate{
		ProgressUpdateID: c.Param("id"),
		MilestoneName:    req.MilestoneName,
		Notes:            req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ms)
}

type completeMilestoneRequest struct {
	Notes string `json:"notes"`
}

func (h *ProgressHandler) CompleteMilestone(c *gin.Context) {
	var req completeMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	ms, err := h.progress.CompleteMilestone(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ms)
}

func (h *ProgressHandler) ShareUpdate(c *gin.Context) {
	upd, err := h.progress.ShareWithClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, upd)
}
