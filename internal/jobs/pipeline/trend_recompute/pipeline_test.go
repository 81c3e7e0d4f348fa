package trend_recompute

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	"github.com/yungbote/keyresult-tracker/internal/data/repos/testutil"
	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

func TestPipelineWritesSnapshot(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	records := progressrepo.NewRecordRepo(db, log)
	trends := progressrepo.NewTrendRepo(db, log)
	p := New(log, records, trends)
	p.now = func() time.Time { return time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC) }

	kr := uuid.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.SeedRecord(t, ctx, db, kr, 1, 20, t0, false)
	testutil.SeedRecord(t, ctx, db, kr, 2, 40, t0.Add(10*24*time.Hour), true)

	q := queue.NewMemory(3)
	_, _ = q.Enqueue(ctx, jobs.JobCalculateTrends, jobs.CalculateTrendsPayload{KeyResultID: kr, Version: 2})
	job, _ := q.Claim(ctx)
	if err := p.Run(jobrt.NewContext(ctx, job, log)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap, err := trends.Get(dbctx.Context{Ctx: ctx}, kr)
	if err != nil || snap == nil {
		t.Fatalf("snapshot missing: %v %v", snap, err)
	}
	if snap.LatestVersion != 2 || snap.TotalUpdates != 2 || snap.CurrentProgress != 40 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.AverageProgressRate == nil || *snap.AverageProgressRate != 2 {
		t.Fatalf("rate: want=2 got=%v", snap.AverageProgressRate)
	}
	if snap.SourceJob != jobs.JobCalculateTrends {
		t.Fatalf("source job: %q", snap.SourceJob)
	}
}

func TestRecomputeClearsSnapshotWithoutHistory(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	deps := Deps{Records: progressrepo.NewRecordRepo(db, log), Trends: progressrepo.NewTrendRepo(db, log)}

	kr := uuid.New()
	rec := testutil.SeedRecord(t, ctx, db, kr, 1, 50, time.Now(), true)
	if _, err := Recompute(ctx, deps, kr, "test", time.Now().UTC()); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if _, err := deps.Records.SoftDelete(dbctx.Context{Ctx: ctx}, rec.ID, time.Now()); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	res, err := Recompute(ctx, deps, kr, "test", time.Now().UTC())
	if err != nil || res.Outcome != OutcomeCleared || res.Snapshot != nil {
		t.Fatalf("want cleared snapshot, got %+v %v", res, err)
	}
	if got, _ := deps.Trends.Get(dbctx.Context{Ctx: ctx}, kr); got != nil {
		t.Fatalf("stale snapshot left behind")
	}
}

func TestRecomputeAfterDeletingLatestFallsBackToPreviousVersion(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	deps := Deps{Records: progressrepo.NewRecordRepo(db, log), Trends: progressrepo.NewTrendRepo(db, log)}
	dbc := dbctx.Context{Ctx: ctx}

	kr := uuid.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.SeedRecord(t, ctx, db, kr, 1, 20, t0, false)
	v2 := testutil.SeedRecord(t, ctx, db, kr, 2, 40, t0.Add(10*24*time.Hour), true)

	first := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	res, err := Recompute(ctx, deps, kr, "test", first)
	if err != nil || res.Outcome != OutcomeStored {
		t.Fatalf("first Recompute: %+v %v", res, err)
	}
	if _, err := deps.Records.SoftDelete(dbc, v2.ID, first.Add(time.Minute)); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	res, err = Recompute(ctx, deps, kr, "test", first.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second Recompute: %v", err)
	}
	if res.Outcome != OutcomeStored {
		t.Fatalf("recompute after delete not stored: %s", res.Outcome)
	}

	snap, err := deps.Trends.Get(dbc, kr)
	if err != nil || snap == nil {
		t.Fatalf("snapshot missing: %v %v", snap, err)
	}
	if snap.LatestVersion != 1 || snap.TotalUpdates != 1 || snap.CurrentProgress != 20 {
		t.Fatalf("snapshot still reflects deleted version: %+v", snap)
	}
}

func TestRecomputeReportsSupersededWhenOlder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	deps := Deps{Records: progressrepo.NewRecordRepo(db, log), Trends: progressrepo.NewTrendRepo(db, log)}

	kr := uuid.New()
	testutil.SeedRecord(t, ctx, db, kr, 1, 30, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true)
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := Recompute(ctx, deps, kr, "test", now); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	res, err := Recompute(ctx, deps, kr, "test", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("late Recompute: %v", err)
	}
	if res.Outcome != OutcomeSuperseded {
		t.Fatalf("want superseded, got %s", res.Outcome)
	}
}

func TestRunSkipsInvalidPayload(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	p := New(log, progressrepo.NewRecordRepo(db, log), progressrepo.NewTrendRepo(db, log))
	job := &queue.Job{ID: "x", Name: jobs.JobCalculateTrends, Payload: []byte(`{"keyResultId":"not-a-uuid"}`)}
	if err := p.Run(jobrt.NewContext(context.Background(), job, log)); err != nil {
		t.Fatalf("invalid payload should not be retried: %v", err)
	}
}
