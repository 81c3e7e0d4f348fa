package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/keyresult-tracker/internal/data/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/jobs/pipeline/metric_update"
	"github.com/yungbote/keyresult-tracker/internal/jobs/pipeline/trend_recompute"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/services"
)

type Services struct {
	Progress services.ProgressService
	Webhook  services.WebhookService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, emitter services.JobEmitter, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	agg := aggregates.NewProgressAggregate(aggregates.ProgressDeps{
		Base: aggregates.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: aggregates.NewProgressHooks(metrics, log),
		},
		Records: r.Records,
		Policy:  progress.Policy{CycleLength: cfg.CycleLength()},
	})
	progressSvc := services.NewProgressService(log, agg, r.Records, r.Trends, emitter, metrics)
	webhookSvc := services.NewWebhookService(log, progressSvc, emitter, metrics, services.WebhookConfig{
		ConflictRetries: cfg.Webhook.ConflictRetries,
		ConflictBackoff: cfg.Webhook.ConflictBackoff,
		BatchCacheSize:  cfg.Webhook.BatchCacheSize,
		BatchCacheTTL:   cfg.Webhook.BatchCacheTTL,
	})
	return Services{Progress: progressSvc, Webhook: webhookSvc}
}

// wireJobs registers every background job handler.
func wireJobs(log *logger.Logger, r Repos) (*jobrt.Registry, error) {
	reg := jobrt.NewRegistry()
	for _, h := range []jobrt.Handler{
		trend_recompute.New(log, r.Records, r.Trends),
		metric_update.New(log, r.Records, r.Trends),
	} {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
