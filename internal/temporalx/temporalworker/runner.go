package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/temporalx"
	"github.com/yungbote/keyresult-tracker/internal/temporalx/jobrun"
)

const (
	startMaxWait = 60 * time.Second
	startBackoff = 250 * time.Millisecond
)

type Runner struct {
	log      *logger.Logger
	tc       temporalsdkclient.Client
	cfg      temporalx.Config
	registry *jobrt.Registry
	metrics  *observability.Metrics
}

func NewRunner(
	baseLog *logger.Logger,
	tc temporalsdkclient.Client,
	cfg temporalx.Config,
	registry *jobrt.Registry,
	metrics *observability.Metrics,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if registry == nil {
		return nil, fmt.Errorf("temporal worker missing job registry")
	}
	return &Runner{
		log:      baseLog.With("component", "TemporalWorker"),
		tc:       tc,
		cfg:      cfg,
		registry: registry,
		metrics:  metrics,
	}, nil
}

// Run starts the worker, retrying transient start failures, and blocks until
// ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting Temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "jobs", r.registry.Names())

	deadline := time.Now().Add(startMaxWait)
	for attempt := 1; ; attempt++ {
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			<-ctx.Done()
			w.Stop()
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) {
			if !r.cfg.AutoRegisterNamespace {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if time.Now().After(deadline) {
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(min(queue.Backoff(startBackoff, attempt), 5*time.Second)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &jobrun.Activities{
		Log:      r.log,
		Registry: r.registry,
		Metrics:  r.metrics,
	}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: queue.WorkflowName})
	w.RegisterActivityWithOptions(acts.Run, activity.RegisterOptions{Name: jobrun.ActivityRun})
	return w
}
