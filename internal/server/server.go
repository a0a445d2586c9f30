// Package server provides HTTP server setup and configuration.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f1replay/telemetry-service/internal/cache"
	"github.com/f1replay/telemetry-service/internal/config"
	"github.com/f1replay/telemetry-service/internal/handlers"
	"github.com/f1replay/telemetry-service/internal/metrics"
	"github.com/f1replay/telemetry-service/internal/middleware"
	"github.com/f1replay/telemetry-service/internal/provider"
)

// healthPath is excluded from access logging
const healthPath = "/api/v1/health"

// Dependencies holds all dependencies needed to create a server
type Dependencies struct {
	Config   *config.Config
	Provider provider.Provider
	Cache    cache.Store // Probed by the health endpoint
	Logger   *zap.Logger
}

// New creates a new Gin router with all routes configured
func New(deps *Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Cache
	if store == nil {
		store = cache.NoopStore{}
	}

	// Set Gin to release mode to disable ANSI colors in logs
	gin.SetMode(gin.ReleaseMode)

	// Use gin.New() instead of gin.Default() to have explicit control over middleware
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger, healthPath))

	// Add CORS middleware for the replay frontend
	origins := deps.Config.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.NewRateLimitMiddleware(deps.Config.Server.RateLimitPerMinute))

	// Chunks are large and highly compressible. promhttp negotiates its own encoding.
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	healthHandler := handlers.NewHealthHandler(store)
	telemetryHandler := handlers.NewTelemetryHandler(deps.Provider, deps.Config.Telemetry.SampleRateHz, logger).
		WithBuildTimeout(deps.Config.Telemetry.BuildTimeout)

	router.GET("/", handlers.RootHandler)
	router.GET(healthPath, healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/telemetry/:year/:race", telemetryHandler.GetOverview)
		api.GET("/telemetry/:year/:race/chunk/:chunk_num", telemetryHandler.GetChunk)
		api.POST("/clear-cache", telemetryHandler.ClearCache)
	}

	return router
}
