package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/imf/internal/api/middleware"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
)

// RouterConfig holds the router middleware settings
type RouterConfig struct {
	CORSOrigins []string
	RateLimit   int
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the admin API.
func NewRouter(h *Handlers, metrics *monitoring.Metrics, cfg RouterConfig) *gin.Engine {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Trace(h.logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.AdminCORSConfig(cfg.CORSOrigins)))
	router.Use(middleware.RateLimit(middleware.AdminRateLimitConfig(cfg.RateLimit)))

	router.GET("/health", h.Health)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", h.MetricsJSON)

	router.GET("/users", h.ListUsers)
	router.GET("/users/:id/dump", h.DumpUser)
	router.GET("/users/:id/imes", h.ListImes)

	router.GET("/abilities", h.ListAbilities)

	return router
}
