package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
)

// SeedRecord inserts a record directly, bypassing versioning rules.
func SeedRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, keyResultID uuid.UUID, version int, current float64, recordedAt time.Time, latest bool) *progress.Record {
	tb.Helper()
	rec := &progress.Record{
		ID:            uuid.New(),
		KeyResultID:   keyResultID,
		ObjectiveID:   uuid.New(),
		KeyResultName: "Reduce p95 latency",
		MetricType:    progress.MetricAbsolute,
		TargetValue:   100,
		CurrentValue:  current,
		RecordedAt:    recordedAt.UTC(),
		Version:       version,
		IsLatest:      latest,
		UpdateSource:  progress.SourceManual,
	}
	rec.Recompute(progress.DefaultPolicy(), recordedAt)
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed record: %v", err)
	}
	return rec
}
