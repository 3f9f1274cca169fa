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

type ScheduleHandler struct {
	schedules *services.ScheduleService
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewScheduleHandler(schedules *services.ScheduleService, validate *validator.Validate, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		validate:  validate,
		logger:    logger.With(zap.String("handler", "schedule")),
	}
}

type scheduleRequest struct {
	ProjectID         string   `json:"projectId" validate:"required"`
	Frequency         string   `json:"frequency" validate:"required"`
	DayOfWeek         *int     `json:"dayOfWeek" validate:"omitempty,min=1,max=7"`
	DayOfMonth        *int     `json:"dayOfMonth" validate:"omitempty,min=1,max=31"`
	Time              string   `json:"time"`
	RecipientIDs      []string `json:"recipientIds" validate:"required,min=1"`
	IncludePhotos     bool     `json:"includePhotos"`
	IncludeMilestones bool     `json:"includeMilestones"`
}

func (r scheduleRequest) toModel() *models.ScheduledUpdate {
	return &models.ScheduledUpdate{
		ProjectID:         r.ProjectID,
		Frequency:         models.UpdateFrequency(r.Frequency),
		DayOfWeek:         r.DayOfWeek,
		DayOfMonth:        r.DayOfMonth,
		Time:              r.Time,
		RecipientIDs:      r.RecipientIDs,
		IncludePhotos:     r.IncludePhotos,
		IncludeMilestones: r.IncludeMilestones,
	}
}

func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	sched, err := h.schedules.CreateSchedule(c.Request.Context(), req.toModel())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": apperror.CustomValidationError(err)})
		return
	}

	sched := req.toModel()
	sched.ID = c.Param("id")
	sched.IsActive = true
	updated, err := h.schedules.UpdateSchedule(c.Request.Context(), sched)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	sched, err := h.schedules.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId query parameter is required"})
		return
	}
	scheds, err := h.schedules.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": scheds})
}

type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

func (h *ScheduleHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	sched, err := h.schedules.SetActive(c.Request.Context(), c.Param("id"), req.IsActive)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
