package metric_update

import (
	"github.com/google/uuid"

	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/jobs/pipeline/trend_recompute"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
)

// Run audits the raw webhook event and refreshes the trend snapshot. The
// value itself was already applied synchronously by the webhook request.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var event jobs.MetricUpdatePayload
	if err := jc.Decode(&event); err != nil || event.KeyResultID == uuid.Nil {
		jc.Log.Warn("skipping job with invalid payload", "error", err)
		return nil
	}
	jc.Log.Info("metric update received",
		"key_result_id", event.KeyResultID,
		"metric_value", event.MetricValue,
		"source", event.Source,
		"timestamp", event.Timestamp,
	)
	_, err := trend_recompute.Recompute(jc.Ctx, trend_recompute.Deps{Records: p.records, Trends: p.trends}, event.KeyResultID, p.Type(), p.now().UTC())
	return err
}
