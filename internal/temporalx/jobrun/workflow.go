package jobrun

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
)

// Workflow runs one queued job as a single activity. Retries are the
// activity's; a job that exhausts them fails the workflow.
func Workflow(ctx workflow.Context, job queue.Job) error {
	policy := DefaultRetryPolicy()
	if job.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(job.MaxAttempts)
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        policy.InitialInterval,
			BackoffCoefficient:     policy.BackoffCoefficient,
			MaximumInterval:        policy.MaximumInterval,
			MaximumAttempts:        policy.MaximumAttempts,
			NonRetryableErrorTypes: []string{ErrTypeMissingHandler},
		},
	})
	return workflow.ExecuteActivity(ctx, ActivityRun, job).Get(ctx, nil)
}
