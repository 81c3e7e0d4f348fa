package aggregates

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	"github.com/yungbote/keyresult-tracker/internal/data/repos/testutil"
	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

func TestStaleValueUpdateFiresConflictHook(t *testing.T) {
	agg, _, hooks := newTestProgressAggregate(t)
	ctx := context.Background()
	kr := uuid.New()

	v1, err := agg.CreateInitial(ctx, createInput(kr, 10))
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if _, err := agg.ApplyUpdate(ctx, domainagg.ApplyProgressUpdateInput{RecordID: v1.ID, Patch: domainagg.ProgressPatch{CurrentValue: floatPtr(20)}}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	_, err = agg.ApplyUpdate(ctx, domainagg.ApplyProgressUpdateInput{RecordID: v1.ID, Patch: domainagg.ProgressPatch{CurrentValue: floatPtr(30)}})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}

	if got := hooks.conflicts(); len(got) != 1 || got[0] != "progress.apply_update" {
		t.Fatalf("conflict hooks: %+v", got)
	}
	ops := hooks.operations()
	if len(ops) != 3 {
		t.Fatalf("operations: want=3 got=%+v", ops)
	}
	want := []spyOperation{
		{Name: "progress.create_initial", Status: "success"},
		{Name: "progress.apply_update", Status: "success"},
		{Name: "progress.apply_update", Status: string(domainagg.CodeConflict)},
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("operation %d: want=%+v got=%+v", i, want[i], ops[i])
		}
	}
	retired := hooks.retired()
	if len(retired) != 1 || retired[0].KeyResultID != kr || retired[0].Version != 1 {
		t.Fatalf("retired hooks: %+v", retired)
	}
}

func TestUnknownRecordObservedAsNotFound(t *testing.T) {
	agg, _, hooks := newTestProgressAggregate(t)
	_, err := agg.ApplyUpdate(context.Background(), domainagg.ApplyProgressUpdateInput{RecordID: uuid.New(), Patch: domainagg.ProgressPatch{Comment: strPtr("x")}})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
	ops := hooks.operations()
	if len(ops) != 1 || ops[0].Status != string(domainagg.CodeNotFound) {
		t.Fatalf("operations: %+v", ops)
	}
	if len(hooks.conflicts()) != 0 || len(hooks.retries()) != 0 {
		t.Fatalf("not_found should not count as conflict or retry")
	}
}

func TestStoreTimeoutFiresRetryHook(t *testing.T) {
	db := testutil.DB(t)
	hooks := &spyHooks{}
	agg := NewProgressAggregate(ProgressDeps{
		Base: BaseDeps{
			DB:     db,
			Log:    testutil.Logger(t),
			Runner: failingTxRunner{err: context.DeadlineExceeded},
			Hooks:  hooks,
		},
		Records: progressrepo.NewRecordRepo(db, testutil.Logger(t)),
	})

	err := agg.SoftDelete(context.Background(), uuid.New())
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("want retryable, got %v", err)
	}
	if got := hooks.retries(); len(got) != 1 || got[0] != "progress.soft_delete" {
		t.Fatalf("retry hooks: %+v", got)
	}
	if ops := hooks.operations(); len(ops) != 1 || ops[0].Status != string(domainagg.CodeRetryable) {
		t.Fatalf("operations: %+v", ops)
	}
}

func TestProgressHooksRecordRetiredVersions(t *testing.T) {
	db := testutil.DB(t)
	metrics := observability.New(prometheus.NewRegistry())
	agg := NewProgressAggregate(ProgressDeps{
		Base: BaseDeps{
			DB:    db,
			Log:   testutil.Logger(t),
			Hooks: NewProgressHooks(metrics, testutil.Logger(t)),
			Now:   func() time.Time { return testNow },
		},
		Records: progressrepo.NewRecordRepo(db, testutil.Logger(t)),
		Policy:  progress.DefaultPolicy(),
	})
	ctx := context.Background()
	kr := uuid.New()

	v1, err := agg.CreateInitial(ctx, createInput(kr, 10))
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if _, err := agg.ApplyUpdate(ctx, domainagg.ApplyProgressUpdateInput{RecordID: v1.ID, Patch: domainagg.ProgressPatch{CurrentValue: floatPtr(25)}}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	_, _ = agg.ApplyUpdate(ctx, domainagg.ApplyProgressUpdateInput{RecordID: v1.ID, Patch: domainagg.ProgressPatch{CurrentValue: floatPtr(30)}})

	expected := `
# HELP krt_aggregate_conflicts_total Aggregate writes rejected by a concurrency guard.
# TYPE krt_aggregate_conflicts_total counter
krt_aggregate_conflicts_total{operation="progress.apply_update"} 1
# HELP krt_progress_versions_retired_total Progress records that lost the latest flag, by operation.
# TYPE krt_progress_versions_retired_total counter
krt_progress_versions_retired_total{operation="progress.apply_update"} 1
`
	if err := promtestutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected),
		"krt_aggregate_conflicts_total", "krt_progress_versions_retired_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestNilMetricsHooksStillServeWrites(t *testing.T) {
	hooks := NewProgressHooks(nil, nil)
	hooks.IncConflict("progress.apply_update")
	hooks.VersionRetired("progress.apply_update", uuid.New(), 1)
	hooks.ObserveOperation("progress.apply_update", "success", time.Millisecond)
}

func TestAggregateErrorStatus(t *testing.T) {
	cases := map[error]string{
		nil:                      "success",
		ValidationError("x"):     string(domainagg.CodeValidation),
		ConflictError("x"):       string(domainagg.CodeConflict),
		RetryableError("x"):      string(domainagg.CodeRetryable),
		context.DeadlineExceeded: string(domainagg.CodeRetryable),
	}
	for err, want := range cases {
		if got := aggregateErrorStatus(err); got != want {
			t.Fatalf("%v: want=%s got=%s", err, want, got)
		}
	}
}

type failingTxRunner struct{ err error }

func (r failingTxRunner) InTx(context.Context, func(dbc dbctx.Context) error) error {
	return r.err
}

type spyHooks struct {
	mu          sync.Mutex
	Operations  []spyOperation
	Conflicts   []string
	Retries     []string
	RetiredList []spyRetired
}

type spyOperation struct {
	Name   string
	Status string
}

type spyRetired struct {
	Op          string
	KeyResultID uuid.UUID
	Version     int
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *spyHooks) VersionRetired(op string, keyResultID uuid.UUID, version int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.RetiredList = append(h.RetiredList, spyRetired{Op: op, KeyResultID: keyResultID, Version: version})
}

func (h *spyHooks) operations() []spyOperation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]spyOperation(nil), h.Operations...)
}

func (h *spyHooks) conflicts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Conflicts...)
}

func (h *spyHooks) retries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Retries...)
}

func (h *spyHooks) retired() []spyRetired {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]spyRetired(nil), h.RetiredList...)
}
