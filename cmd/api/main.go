package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirella/binsight/internal/api"
	"github.com/mirella/binsight/internal/config"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/repository"
	"github.com/mirella/binsight/internal/service"
	"github.com/mirella/binsight/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	cacheRepo := repository.NewCacheEntryRepository(db)
	scanRepo := repository.NewScanEventRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)

	// Initialize thumbnail storage when configured; classification works
	// without it.
	var thumbs service.ThumbnailStore
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewS3Storage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		thumbs = storage.NewThumbnailUploader(objectStorage)
	}

	// Initialize services
	guard := service.NewAbuseGuard(cfg.RateLimit, appLogger)
	metrics := service.NewMetricsRegistry(cfg.Metrics.Timezone)
	tasks := service.NewTaskQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, appLogger)

	classifier := service.NewClassifierProvider(&service.ClassifierProviderConfig{
		Model:         cfg.Classifier.Model,
		APIKey:        cfg.Classifier.APIKey,
		BaseURL:       cfg.Classifier.BaseURL,
		Timeout:       cfg.Classifier.Timeout,
		RatePerMinute: cfg.Classifier.RatePerMinute,
	})

	cache := service.NewSimilarityCache(cacheRepo, appLogger, &service.SimilarityCacheConfig{
		RecentWindow: cfg.Cache.RecentWindow,
	})

	classifyService := service.NewClassifyService(
		service.NewPerceptualHasher(),
		cache,
		guard,
		metrics,
		classifier,
		scanRepo,
		thumbs,
		tasks,
		appLogger,
		&service.ClassifyConfig{
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		},
	)

	feedbackService := service.NewFeedbackService(feedbackRepo, guard, appLogger, cfg.Feedback.RetryCount)

	// Setup router
	router := api.SetupRouter(&api.Dependencies{
		Classify:  classifyService,
		Feedback:  feedbackService,
		Guard:     guard,
		Metrics:   metrics,
		CacheRepo: cacheRepo,
		ScanRepo:  scanRepo,
		Log:       appLogger,
	}, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Flush queued background writes before exit
	tasks.Close()

	appLogger.Info("Server exited")
}
