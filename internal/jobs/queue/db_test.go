package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	jobsrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/jobs"
	"github.com/yungbote/keyresult-tracker/internal/data/repos/testutil"
	domain "github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

func TestDBQueueClaimAck(t *testing.T) {
	db := testutil.DB(t)
	repo := jobsrepo.NewJobRunRepo(db, testutil.Logger(t))
	q := NewDBQueue(repo, 3, time.Minute)
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "t-9", RequestID: "r-9"})

	kr := uuid.New()
	id, err := q.Enqueue(ctx, domain.JobCalculateTrends, domain.CalculateTrendsPayload{KeyResultID: kr, Version: 1})
	if err != nil || id == "" {
		t.Fatalf("Enqueue: id=%q err=%v", id, err)
	}
	job, err := q.Claim(context.Background())
	if err != nil || job == nil {
		t.Fatalf("Claim: %v %v", job, err)
	}
	if job.ID != id || job.Attempts != 1 || job.MaxAttempts != 3 || job.TraceID != "t-9" {
		t.Fatalf("unexpected job: %+v", job)
	}
	var p domain.CalculateTrendsPayload
	if err := job.Decode(&p); err != nil || p.KeyResultID != kr {
		t.Fatalf("payload: %+v %v", p, err)
	}
	if next, _ := q.Claim(context.Background()); next != nil {
		t.Fatalf("running job claimed twice: %+v", next)
	}
	if err := q.Ack(context.Background(), job); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	run, _ := repo.GetByID(dbctx.Context{Ctx: context.Background()}, uuid.MustParse(id))
	if run == nil || run.Status != domain.StatusSucceeded {
		t.Fatalf("want succeeded, got %+v", run)
	}
}

func TestDBQueueRetryAndDead(t *testing.T) {
	db := testutil.DB(t)
	repo := jobsrepo.NewJobRunRepo(db, testutil.Logger(t))
	q := NewDBQueue(repo, 2, time.Minute)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.JobProcessMetricUpdate, nil)
	job, _ := q.Claim(ctx)
	if job == nil {
		t.Fatalf("nothing claimed")
	}
	if err := q.Retry(ctx, job, errors.New("store busy"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if next, _ := q.Claim(ctx); next != nil {
		t.Fatalf("retry claimed before run_at: %+v", next)
	}
	if err := q.Retry(ctx, job, errors.New("store busy"), time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	again, _ := q.Claim(ctx)
	if again == nil || again.Attempts != 2 || !again.Exhausted() {
		t.Fatalf("want final attempt, got %+v", again)
	}
	if err := q.Dead(ctx, again, errors.New("store busy")); err != nil {
		t.Fatalf("Dead: %v", err)
	}
	run, _ := repo.GetByID(dbctx.Context{Ctx: ctx}, uuid.MustParse(id))
	if run == nil || run.Status != domain.StatusDead || run.Error != "store busy" {
		t.Fatalf("want dead with cause, got %+v", run)
	}
}

func TestDBQueueReclaimsStaleRunning(t *testing.T) {
	db := testutil.DB(t)
	repo := jobsrepo.NewJobRunRepo(db, testutil.Logger(t))
	q := NewDBQueue(repo, 3, time.Minute)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.JobCalculateTrends, nil)
	if job, _ := q.Claim(ctx); job == nil {
		t.Fatalf("nothing claimed")
	}
	if err := db.Model(&domain.JobRun{}).Where("id = ?", id).Update("locked_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age lock: %v", err)
	}
	job, err := q.Claim(ctx)
	if err != nil || job == nil || job.ID != id || job.Attempts != 2 {
		t.Fatalf("stale running job not reclaimed: %+v %v", job, err)
	}
}

func TestDBQueueRejectsMalformedID(t *testing.T) {
	q := NewDBQueue(jobsrepo.NewJobRunRepo(testutil.DB(t), testutil.Logger(t)), 3, 0)
	if err := q.Ack(context.Background(), &Job{ID: "not-a-uuid"}); err == nil {
		t.Fatalf("want parse error")
	}
}
