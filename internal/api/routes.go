package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/api/handlers"
	"github.com/clientbridge/engagement/internal/api/middleware"
	"github.com/clientbridge/engagement/internal/services"
	"github.com/clientbridge/engagement/pkg/metrics"
)

type Router struct {
	engine          *gin.Engine
	logger          *zap.Logger
	metrics         *metrics.MetricsCollector
	docHandler      *handlers.DocumentHandler
	sigHandler      *handlers.SignatureHandler
	schedHandler    *handlers.ScheduleHandler
	progressHandler *handlers.ProgressHandler
	reqMiddleware   *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	mc *metrics.MetricsCollector,
	templates *services.TemplateService,
	signatures *services.SignatureService,
	schedules *services.ScheduleService,
	progress *services.ProgressService,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())

	validate := validator.New()

	return &Router{
		engine:          engine,
		logger:          logger,
		metrics:         mc,
		docHandler:      handlers.NewDocumentHandler(templates, validate, logger),
		sigHandler:      handlers.NewSignatureHandler(signatures, validate, logger),
		schedHandler:    handlers.NewScheduleHandler(schedules, validate, logger),
		progressHandler: handlers.NewProgressHandler(progress, validate, logger),
		reqMiddleware:   reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "engagement-engine"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/documents", r.docHandler.CreateDocument)
		v1.GET("/documents", r.docHandler.ListDocuments)
		v1.GET("/documents/:id", r.docHandler.GetDocument)
		v1.PATCH("/documents/:id", r.docHandler.UpdateDocument)
		v1.DELETE("/documents/:id", r.docHandler.DeleteDocument)
		v1.POST("/documents/:id/fields", r.docHandler.AddField)
		v1.POST("/templates/:id/clone", r.docHandler.CloneTemplate)

		v1.POST("/signature-requests", r.sigHandler.CreateRequest)
		v1.GET("/signature-requests", r.sigHandler.ListRequests)
		v1.GET("/signature-requests/:id", r.sigHandler.GetRequest)
		v1.POST("/signature-requests/:id/view", r.sigHandler.RecordView)
		v1.POST("/signature-requests/:id/complete", r.sigHandler.CompleteRequest)
		v1.POST("/signature-requests/:id/decline", r.sigHandler.DeclineRequest)
		v1.POST("/signature-requests/:id/cancel", r.sigHandler.CancelRequest)
		v1.POST("/signature-requests/:id/remind", r.sigHandler.SendReminder)

		v1.GET("/signatures/:id", r.sigHandler.GetSignature)
		v1.POST("/signatures/:id/invalidate", r.sigHandler.InvalidateSignature)

		v1.POST("/schedules", r.schedHandler.CreateSchedule)
		v1.GET("/schedules", r.schedHandler.ListSchedules)
		v1.GET("/schedules/:id", r.schedHandler.GetSchedule)
		v1.PUT("/schedules/:id", r.schedHandler.UpdateSchedule)
		v1.POST("/schedules/:id/active", r.schedHandler.SetActive)
		v1.DELETE("/schedules/:id", r.schedHandler.DeleteSchedule)

		v1.POST("/progress-updates", r.progressHandler.CreateUpdate)
		v1.GET("/progress-updates", r.progressHandler.ListUpdates)
		v1.GET("/progress-updates/:id", r.progressHandler.GetUpdate)
		v1.POST("/progress-updates/:id/milestones", r.progressHandler.AddMilestone)
		v1.POST("/progress-updates/:id/share", r.progressHandler.ShareUpdate)
		v1.POST("/milestones/:id/complete", r.progressHandler.CompleteMilestone)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
