package jobrun

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

const ErrTypeMissingHandler = "MissingJobHandler"

type Activities struct {
	Log      *logger.Logger
	Registry *jobrt.Registry
	Metrics  *observability.Metrics
}

// Run dispatches the job to its registered handler.
func (a *Activities) Run(ctx context.Context, job queue.Job) error {
	job.Attempts = int(activity.GetInfo(ctx).Attempt)
	jc := jobrt.NewContext(ctx, &job, a.Log)

	start := time.Now()
	err := a.Registry.Dispatch(jc)
	switch {
	case err == nil:
		a.Metrics.ObserveJobRun(job.Name, "succeeded", time.Since(start))
		return nil
	case jobrt.IsMissingHandler(err):
		a.Metrics.ObserveJobRun(job.Name, "dead", time.Since(start))
		jc.Log.Error("no handler for job", "error", err)
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeMissingHandler, err)
	default:
		status := "retry"
		if job.Exhausted() {
			status = "dead"
		}
		a.Metrics.ObserveJobRun(job.Name, status, time.Since(start))
		jc.Log.Warn("job failed", "error", err, "status", status)
		return err
	}
}
