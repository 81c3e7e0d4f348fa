package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/keyresult-tracker/internal/data/repos/testutil"
	domain "github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

func TestRecordRepoLatestAndHistory(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	kr := uuid.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v1 := testutil.SeedRecord(t, ctx, db, kr, 1, 10, t0, false)
	v2 := testutil.SeedRecord(t, ctx, db, kr, 2, 30, t0.Add(48*time.Hour), true)
	testutil.SeedRecord(t, ctx, db, uuid.New(), 1, 50, t0, true)

	latest, err := repo.GetLatest(dbc, kr, false)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest == nil || latest.ID != v2.ID {
		t.Fatalf("GetLatest: want=%s got=%v", v2.ID, latest)
	}

	history, err := repo.ListHistory(dbc, kr)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 2 || history[0].ID != v1.ID || history[1].ID != v2.ID {
		t.Fatalf("ListHistory order: %+v", history)
	}

	missing, err := repo.GetLatest(dbc, uuid.New(), false)
	if err != nil || missing != nil {
		t.Fatalf("GetLatest unknown: rec=%v err=%v", missing, err)
	}
}

func TestRecordRepoSoftDeleteHidesRecord(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	kr := uuid.New()
	rec := testutil.SeedRecord(t, ctx, db, kr, 3, 20, time.Now(), true)

	ok, err := repo.SoftDelete(dbc, rec.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("SoftDelete: ok=%v err=%v", ok, err)
	}
	again, err := repo.SoftDelete(dbc, rec.ID, time.Now())
	if err != nil || again {
		t.Fatalf("second SoftDelete should be a no-op: ok=%v err=%v", again, err)
	}
	if got, _ := repo.GetByID(dbc, rec.ID, false); got != nil {
		t.Fatalf("soft-deleted record still visible")
	}
	if got, _ := repo.GetLatest(dbc, kr, false); got != nil {
		t.Fatalf("soft-deleted latest still visible")
	}

	max, err := repo.MaxVersion(dbc, kr)
	if err != nil {
		t.Fatalf("MaxVersion: %v", err)
	}
	if max != 3 {
		t.Fatalf("MaxVersion should see soft-deleted rows: want=3 got=%d", max)
	}

	ok, err = repo.HardDelete(dbc, rec.ID)
	if err != nil || !ok {
		t.Fatalf("HardDelete: ok=%v err=%v", ok, err)
	}
	if max, _ := repo.MaxVersion(dbc, kr); max != 0 {
		t.Fatalf("MaxVersion after hard delete: want=0 got=%d", max)
	}
}

func TestRecordRepoFindFiltersAndPages(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	kr := uuid.New()
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		testutil.SeedRecord(t, ctx, db, kr, i, float64(i*10), t0.Add(time.Duration(i)*24*time.Hour), i == 5)
	}
	testutil.SeedRecord(t, ctx, db, uuid.New(), 1, 90, t0, true)

	rows, total, err := repo.Find(dbc, RecordFilter{KeyResultID: &kr}, Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if total != 5 {
		t.Fatalf("total: want=5 got=%d", total)
	}
	if len(rows) != 2 || rows[0].Version != 4 || rows[1].Version != 3 {
		t.Fatalf("page should be recordedAt DESC: %+v", rows)
	}

	start := t0.Add(2 * 24 * time.Hour)
	end := t0.Add(4 * 24 * time.Hour)
	_, total, err = repo.Find(dbc, RecordFilter{KeyResultID: &kr, StartDate: &start, EndDate: &end}, Page{Limit: 50})
	if err != nil {
		t.Fatalf("Find range: %v", err)
	}
	if total != 3 {
		t.Fatalf("range total: want=3 got=%d", total)
	}

	rows, total, err = repo.Find(dbc, RecordFilter{LatestOnly: true}, Page{Limit: 50})
	if err != nil {
		t.Fatalf("Find latest: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("latestOnly: want=2 got total=%d rows=%d", total, len(rows))
	}
}

func TestTrendRepoUpsertKeepsLatestComputation(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewTrendRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	kr := uuid.New()
	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored, err := repo.Upsert(dbc, &domain.TrendSnapshot{KeyResultID: kr, ObjectiveID: uuid.New(), CurrentProgress: 40, Status: domain.StatusAtRisk, LatestVersion: 2, TotalUpdates: 2, ComputedAt: later})
	if err != nil || !stored {
		t.Fatalf("Upsert later: stored=%v err=%v", stored, err)
	}
	stored, err = repo.Upsert(dbc, &domain.TrendSnapshot{KeyResultID: kr, ObjectiveID: uuid.New(), CurrentProgress: 20, Status: domain.StatusAtRisk, LatestVersion: 1, TotalUpdates: 1, ComputedAt: later.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("Upsert earlier: %v", err)
	}
	if stored {
		t.Fatalf("earlier computation reported as stored")
	}
	got, err := repo.Get(dbc, kr)
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.LatestVersion != 2 || got.CurrentProgress != 40 {
		t.Fatalf("stale snapshot overwrote newer one: %+v", got)
	}

	// A later computation with a lower version wins: the newer one was deleted.
	stored, err = repo.Upsert(dbc, &domain.TrendSnapshot{KeyResultID: kr, ObjectiveID: uuid.New(), CurrentProgress: 20, Status: domain.StatusAtRisk, LatestVersion: 1, TotalUpdates: 1, ComputedAt: later.Add(time.Minute)})
	if err != nil || !stored {
		t.Fatalf("Upsert after delete: stored=%v err=%v", stored, err)
	}
	got, _ = repo.Get(dbc, kr)
	if got == nil || got.LatestVersion != 1 || got.CurrentProgress != 20 {
		t.Fatalf("want version 1 snapshot, got %+v", got)
	}
}
