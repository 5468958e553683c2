package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/http/handlers"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/http/middleware"
)

const defaultMetricsPath = "/metrics"

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	ReportHandler *handlers.ReportHandler
	HealthHandler *handlers.HealthHandler

	// UploadLimiter guards POST /api/report only.
	UploadLimiter middleware.RateLimiter
	CORSOrigins   []string

	Metrics          *prom.AppMetrics
	MetricsCollector prom.MetricsCollector
	MetricsPath      string

	Logger logging.Logger
}

// NewRouter builds the gin engine: global middleware, public probes,
// metrics and the /api group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = defaultMetricsPath
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	if cfg.ReportHandler != nil {
		var uploadMW []gin.HandlerFunc
		if cfg.UploadLimiter != nil {
			uploadMW = append(uploadMW, middleware.RateLimit(cfg.UploadLimiter))
		}
		cfg.ReportHandler.RegisterRoutes(r.Group("/api"), uploadMW...)
	}

	return r
}
