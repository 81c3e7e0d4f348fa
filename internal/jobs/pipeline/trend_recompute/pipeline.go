package trend_recompute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var payload jobs.CalculateTrendsPayload
	if err := jc.Decode(&payload); err != nil || payload.KeyResultID == uuid.Nil {
		// A malformed payload cannot succeed on retry.
		jc.Log.Warn("skipping job with invalid payload", "error", err)
		return nil
	}
	res, err := Recompute(jc.Ctx, Deps{Records: p.records, Trends: p.trends}, payload.KeyResultID, p.Type(), p.now().UTC())
	if err != nil {
		return err
	}
	switch res.Outcome {
	case OutcomeCleared:
		jc.Log.Info("no live history; trend snapshot cleared", "key_result_id", payload.KeyResultID)
	case OutcomeSuperseded:
		jc.Log.Info("trend snapshot superseded by a later computation",
			"key_result_id", payload.KeyResultID,
			"latest_version", res.Snapshot.LatestVersion,
		)
	default:
		jc.Log.Info("trend snapshot updated",
			"key_result_id", res.Snapshot.KeyResultID,
			"latest_version", res.Snapshot.LatestVersion,
			"current_progress", res.Snapshot.CurrentProgress,
			"is_on_track", res.Snapshot.IsOnTrack,
		)
	}
	return nil
}

type Deps struct {
	Records progressrepo.RecordRepo
	Trends  progressrepo.TrendRepo
}

type Outcome string

const (
	OutcomeStored     Outcome = "stored"
	OutcomeCleared    Outcome = "cleared"
	OutcomeSuperseded Outcome = "superseded"
)

// Result carries the computed snapshot and what happened to it. Snapshot is
// nil when the history was empty.
type Result struct {
	Snapshot *progress.TrendSnapshot
	Outcome  Outcome
}

// Recompute summarizes the live history of a key result and upserts the
// snapshot. With no live history left the stale snapshot is removed.
func Recompute(ctx context.Context, deps Deps, keyResultID uuid.UUID, sourceJob string, now time.Time) (Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	history, err := deps.Records.ListHistory(dbc, keyResultID)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}
	summary, err := progress.Summarize(history, now)
	if errors.Is(err, progress.ErrEmptyHistory) {
		if err := deps.Trends.Delete(dbc, keyResultID); err != nil {
			return Result{}, fmt.Errorf("delete trend: %w", err)
		}
		return Result{Outcome: OutcomeCleared}, nil
	}
	if err != nil {
		return Result{}, err
	}
	latestVersion := 0
	for _, r := range history {
		if r.Version > latestVersion {
			latestVersion = r.Version
		}
	}
	snap := progress.SnapshotFromSummary(summary, latestVersion, sourceJob, now)
	stored, err := deps.Trends.Upsert(dbc, &snap)
	if err != nil {
		return Result{}, fmt.Errorf("upsert trend: %w", err)
	}
	out := Result{Snapshot: &snap, Outcome: OutcomeStored}
	if !stored {
		out.Outcome = OutcomeSuperseded
	}
	return out, nil
}
