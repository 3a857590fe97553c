package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/api/handlers"
	"github.com/andresuchdata/autopo-replenishment/internal/api/middleware"
	"github.com/andresuchdata/autopo-replenishment/internal/metrics"
	"github.com/andresuchdata/autopo-replenishment/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	RecommendationService *service.RecommendationService
	AlertService          *service.AlertService
	RunService            *service.RunService
}

// Options carries the router's ambient collaborators. All fields are
// optional.
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	// HealthCheck reports whether backing stores are reachable.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(services *Services, opts Options) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(opts.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler(opts.HealthCheck))
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.RecommendationService != nil {
			recommendationHandler := handlers.NewRecommendationHandler(services.RecommendationService)
			recommendationGroup := apiGroup.Group("/recommendations")
			{
				recommendationGroup.GET("", recommendationHandler.GetRecommendations)
				recommendationGroup.GET("/summary", recommendationHandler.GetSummary)
			}
		}

		if services.AlertService != nil {
			alertHandler := handlers.NewAlertHandler(services.AlertService)
			alertGroup := apiGroup.Group("/alerts")
			{
				alertGroup.GET("", alertHandler.GetAlerts)
				alertGroup.GET("/notifiable", alertHandler.GetNotifiable)
				alertGroup.PATCH("/:id/status", alertHandler.UpdateStatus)
			}
		}

		if services.RunService != nil {
			runHandler := handlers.NewRunHandler(services.RunService)
			runGroup := apiGroup.Group("/runs")
			{
				runGroup.POST("", runHandler.TriggerRun)
				runGroup.GET("/:id", runHandler.GetRun)
			}
		}
	}

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
