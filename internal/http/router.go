package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/keyresult-tracker/internal/http/handlers"
	httpMW "github.com/yungbote/keyresult-tracker/internal/http/middleware"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	APIPrefix   string
	CORSOrigins []string

	ProgressHandler *httpH.ProgressHandler
	WebhookHandler  *httpH.WebhookHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/health/ready", cfg.HealthHandler.Ready)
		r.GET("/health/live", cfg.HealthHandler.Live)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	{
		// Progress
		if h := cfg.ProgressHandler; h != nil {
			api.POST("/key-results/progress", h.Create)
			api.GET("/key-results/progress", h.List)
			api.GET("/key-results/progress/:id", h.Get)
			api.PUT("/key-results/progress/:id", h.Update)
			api.DELETE("/key-results/progress/:id", h.Delete)

			api.GET("/key-results/:keyResultId/latest", h.Latest)
			api.GET("/key-results/:keyResultId/summary", h.Summary)
			api.GET("/key-results/:keyResultId/history", h.History)
			api.GET("/key-results/:keyResultId/trend", h.Trend)

			api.DELETE("/admin/key-results/progress/:id", h.HardDelete)
		}

		// Webhooks
		if h := cfg.WebhookHandler; h != nil {
			api.POST("/key-results/webhook/metric-update", h.MetricUpdate)
			api.POST("/key-results/webhook/bulk-metric-update", h.BulkMetricUpdate)
			api.GET("/key-results/webhook/health", h.Health)
		}
	}

	return r
}
