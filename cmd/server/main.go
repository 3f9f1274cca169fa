package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/api"
	"github.com/clientbridge/engagement/internal/config"
	"github.com/clientbridge/engagement/internal/db"
	"github.com/clientbridge/engagement/internal/notify"
	"github.com/clientbridge/engagement/internal/scheduler"
	"github.com/clientbridge/engagement/internal/services"
	"github.com/clientbridge/engagement/internal/store"
	"github.com/clientbridge/engagement/pkg/logger"
	"github.com/clientbridge/engagement/pkg/metrics"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg *config.Configuration
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.InitializeDefaultConfig()
	}

	zapLogger, err := logger.New(cfg.Logging.Environment, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(zapLogger)

	entityStore, closeStore, err := buildStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize entity store", zap.Error(err))
	}
	defer closeStore()

	metricsCollector := metrics.NewMetricsCollector()

	notifier := notify.NewLogNotifier(zapLogger)
	dispatcher := notify.NewDispatcher(entityStore, notifier, zapLogger)

	signatureService := services.NewSignatureService(entityStore, zapLogger, metricsCollector)
	templateService := services.NewTemplateService(entityStore, zapLogger, metricsCollector)
	scheduleService := services.NewScheduleService(entityStore, zapLogger, metricsCollector, cfg.Scheduler.DefaultSendTime)
	progressService := services.NewProgressService(entityStore, scheduleService, dispatcher, zapLogger, metricsCollector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := scheduler.New(cfg.Scheduler, entityStore, signatureService, scheduleService, dispatcher, zapLogger, metricsCollector)
	go sweeper.Start(ctx)

	router := api.NewRouter(zapLogger, metricsCollector, templateService, signatureService, scheduleService, progressService)
	router.SetupRoutes()

	go func() {
		if err := router.Run(":" + cfg.Server.Port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down...")
	sweeper.Stop()
	cancel()
	zapLogger.Info("Server gracefully stopped")
}

func buildStore(cfg *config.Configuration, zapLogger *zap.Logger) (store.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		zapLogger.Warn("Using in-memory entity store; data will not survive restarts")
		return store.NewMemory(), func() {}, nil
	}

	database, err := db.Initialize(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return store.NewGorm(database), closeFn, nil
}
