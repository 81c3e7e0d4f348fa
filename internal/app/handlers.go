package app

import (
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	apphttp "github.com/yungbote/keyresult-tracker/internal/http"
	httpH "github.com/yungbote/keyresult-tracker/internal/http/handlers"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

func wireRouterConfig(log *logger.Logger, cfg Config, db *gorm.DB, rdb goredis.UniversalClient, svc Services, metrics *observability.Metrics) apphttp.RouterConfig {
	log.Info("Wiring handlers...")
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		ServiceName: serviceName,
		APIPrefix:   cfg.HTTP.APIPrefix,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		ProgressHandler: httpH.NewProgressHandlerWithDeps(httpH.ProgressHandlerDeps{
			Log:      log,
			Progress: svc.Progress,
		}),
		WebhookHandler: httpH.NewWebhookHandlerWithDeps(httpH.WebhookHandlerDeps{
			Log:     log,
			Webhook: svc.Webhook,
		}),
		HealthHandler: httpH.NewHealthHandlerWithDeps(httpH.HealthHandlerDeps{
			DB:    db,
			Redis: rdb,
		}),
	}
}
