package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/api/handler"
	"github.com/mirella/binsight/internal/api/middleware"
	"github.com/mirella/binsight/internal/config"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/repository"
	"github.com/mirella/binsight/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything the router wires into handlers.
type Dependencies struct {
	Classify  *service.ClassifyService
	Feedback  *service.FeedbackService
	Guard     *service.AbuseGuard
	Metrics   *service.MetricsRegistry
	CacheRepo *repository.CacheEntryRepository
	ScanRepo  *repository.ScanEventRepository
	Log       *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Dependencies, cfg *config.Config) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.Prometheus())
	r.Use(corsMiddleware(cfg.Server.CORS))

	// Create handlers
	classifyHandler := handler.NewClassifyHandler(deps.Classify, deps.Guard, deps.Log)
	feedbackHandler := handler.NewFeedbackHandler(deps.Feedback, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.Metrics)
	adminHandler := handler.NewAdminHandler(deps.Guard, deps.Metrics, deps.CacheRepo, deps.ScanRepo, deps.Log)

	// Health check and Prometheus scrape endpoint
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/classify", classifyHandler.Classify)
		v1.POST("/feedback", feedbackHandler.Submit)

		admin := v1.Group("/admin")
		{
			admin.GET("/security-events", adminHandler.SecurityEvents)
			admin.GET("/stats", adminHandler.Stats)
		}
	}

	return r
}

// corsMiddleware builds the CORS policy from configuration. Credentials stay
// disabled with wildcard origins.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.AllowAllOrigins || len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	return cors.New(corsCfg)
}
