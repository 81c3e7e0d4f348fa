package aggregates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
)

var ProgressAggregateContract = Contract{
	Name:             "KeyResult.ProgressAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns the version sequence and the single live latest record per key result.",
}

// ProgressAggregate owns progress versioning.
//
// Write failures return *Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeRetryable, CodeInternal.
type ProgressAggregate interface {
	Aggregate

	// CreateInitial writes a new baseline record for a key result. A live
	// record, if any, is retired into history first.
	CreateInitial(ctx context.Context, in CreateProgressInput) (*progress.Record, error)

	// ApplyUpdate writes a new version when the value changes, otherwise
	// merges the patch into the record in place.
	ApplyUpdate(ctx context.Context, in ApplyProgressUpdateInput) (ApplyProgressUpdateResult, error)

	// SoftDelete tombstones one record without touching the latest pointer.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// HardDelete removes one record outright.
	HardDelete(ctx context.Context, id uuid.UUID) (*progress.Record, error)
}

type CreateProgressInput struct {
	KeyResultID     uuid.UUID
	ObjectiveID     uuid.UUID
	KeyResultName   string
	Description     string
	MetricType      progress.MetricType
	TargetValue     float64
	StartingValue   float64
	CurrentValue    float64
	UpdatedBy       *uuid.UUID
	UpdateSource    string
	MetricMetadata  json.RawMessage
	Comment         string
	RecordedAt      *time.Time
	DueDate         *time.Time
	ConfidenceScore *int
}

// ProgressPatch holds the fields of an update; nil means absent.
type ProgressPatch struct {
	CurrentValue    *float64
	Status          *progress.Status
	UpdatedBy       *uuid.UUID
	UpdateSource    *string
	MetricMetadata  json.RawMessage
	Comment         *string
	RecordedAt      *time.Time
	ConfidenceScore *int
	ExpectedVersion *int
}

type ApplyProgressUpdateInput struct {
	RecordID uuid.UUID
	Patch    ProgressPatch
}

type ApplyProgressUpdateResult struct {
	Record     *progress.Record
	Previous   *progress.Record
	NewVersion bool
}
