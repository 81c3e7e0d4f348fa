package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	"github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type Config struct {
	Concurrency int           `yaml:"concurrency"`
	Poll        time.Duration `yaml:"poll"`
	Backoff     time.Duration `yaml:"backoff"`
}

type Worker struct {
	log      *logger.Logger
	src      queue.Source
	registry *runtime.Registry
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time
}

func NewWorker(baseLog *logger.Logger, src queue.Source, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = queue.DefaultBackoff
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		src:      src,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "jobs", w.registry.Names())
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				job, err := w.src.Claim(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.log.Warn("Claim failed", "worker_id", workerID, "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				w.process(ctx, workerID, job)
			}
		}
	}
}

// process runs one job and settles it: ack on success, retry with
// exponential backoff while attempts remain, dead-letter otherwise.
func (w *Worker) process(ctx context.Context, workerID int, job *queue.Job) {
	start := time.Now()
	jc := runtime.NewContext(ctx, job, w.log)
	runErr := w.registry.Dispatch(jc)

	// Settlement must happen even when shutdown races the handler.
	settleCtx := context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		w.metrics.ObserveJobRun(job.Name, "succeeded", time.Since(start))
		if err := w.src.Ack(settleCtx, job); err != nil {
			jc.Log.Warn("Ack failed", "worker_id", workerID, "error", err)
		}
	case runtime.IsMissingHandler(runErr) || job.Exhausted():
		w.metrics.ObserveJobRun(job.Name, "dead", time.Since(start))
		jc.Log.Error("Job failed permanently", "worker_id", workerID, "error", runErr)
		if err := w.src.Dead(settleCtx, job, runErr); err != nil {
			jc.Log.Warn("Dead-letter failed", "worker_id", workerID, "error", err)
		}
	default:
		delay := queue.Backoff(w.cfg.Backoff, job.Attempts)
		w.metrics.ObserveJobRun(job.Name, "retry", time.Since(start))
		jc.Log.Warn("Job failed; will retry", "worker_id", workerID, "error", runErr, "retry_in", delay.String())
		if err := w.src.Retry(settleCtx, job, runErr, w.now().Add(delay)); err != nil {
			jc.Log.Warn("Retry scheduling failed", "worker_id", workerID, "error", err)
		}
	}
}
