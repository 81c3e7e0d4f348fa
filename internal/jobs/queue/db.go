package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobsrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/jobs"
	domain "github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

// DBQueue stores jobs in the job_run table and claims them with
// SELECT ... FOR UPDATE SKIP LOCKED on postgres.
type DBQueue struct {
	repo         jobsrepo.JobRunRepo
	maxAttempts  int
	staleRunning time.Duration
}

func NewDBQueue(repo jobsrepo.JobRunRepo, maxAttempts int, staleRunning time.Duration) *DBQueue {
	if staleRunning <= 0 {
		staleRunning = 10 * time.Minute
	}
	return &DBQueue{repo: repo, maxAttempts: maxAttempts, staleRunning: staleRunning}
}

func (q *DBQueue) Backend() string { return BackendDB }

func (q *DBQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	job, err := newJob(ctx, "", name, payload, q.maxAttempts)
	if err != nil {
		return "", err
	}
	run := &domain.JobRun{
		ID:          uuid.New(),
		JobName:     name,
		Status:      domain.StatusQueued,
		MaxAttempts: job.MaxAttempts,
		Payload:     datatypes.JSON(job.Payload),
		RunAt:       job.EnqueuedAt,
		TraceID:     job.TraceID,
		RequestID:   job.RequestID,
	}
	if err := q.repo.Create(dbctx.Context{Ctx: ctx}, run); err != nil {
		return "", fmt.Errorf("db enqueue %s: %w", name, err)
	}
	return run.ID.String(), nil
}

func (q *DBQueue) Claim(ctx context.Context) (*Job, error) {
	run, err := q.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, q.staleRunning)
	if err != nil || run == nil {
		return nil, err
	}
	return &Job{
		ID:          run.ID.String(),
		Name:        run.JobName,
		Payload:     []byte(run.Payload),
		Attempts:    run.Attempts,
		MaxAttempts: run.MaxAttempts,
		EnqueuedAt:  run.CreatedAt,
		TraceID:     run.TraceID,
		RequestID:   run.RequestID,
	}, nil
}

func (q *DBQueue) Ack(ctx context.Context, job *Job) error {
	id, err := uuid.Parse(job.ID)
	if err != nil {
		return err
	}
	return q.repo.MarkSucceeded(dbctx.Context{Ctx: ctx}, id)
}

func (q *DBQueue) Retry(ctx context.Context, job *Job, cause error, at time.Time) error {
	id, err := uuid.Parse(job.ID)
	if err != nil {
		return err
	}
	return q.repo.MarkRetry(dbctx.Context{Ctx: ctx}, id, errString(cause), at)
}

func (q *DBQueue) Dead(ctx context.Context, job *Job, cause error) error {
	id, err := uuid.Parse(job.ID)
	if err != nil {
		return err
	}
	return q.repo.MarkDead(dbctx.Context{Ctx: ctx}, id, errString(cause))
}
