package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
)

const progressTable = "key_result_progress"

type ProgressDeps struct {
	Base    BaseDeps
	Records progressrepo.RecordRepo
	Policy  progress.Policy
}

type progressAggregate struct {
	deps ProgressDeps
}

func NewProgressAggregate(deps ProgressDeps) domainagg.ProgressAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Policy.CycleLength <= 0 {
		deps.Policy = progress.DefaultPolicy()
	}
	return &progressAggregate{deps: deps}
}

func (a *progressAggregate) Contract() domainagg.Contract {
	return domainagg.ProgressAggregateContract
}

func (a *progressAggregate) CreateInitial(ctx context.Context, in domainagg.CreateProgressInput) (*progress.Record, error) {
	const op = "progress.create_initial"
	if in.MetricType == "" {
		in.MetricType = progress.MetricPercentage
	}
	if err := validateCreate(op, in); err != nil {
		return nil, err
	}

	now := a.deps.Base.Now().UTC()
	var out, superseded *progress.Record
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		superseded = nil
		existing, err := a.deps.Records.GetLatest(dbc, in.KeyResultID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			// A fresh create re-baselines the key result; the live record stays in history.
			ok, err := a.deps.Base.CASGuard.RetireLatest(dbc, progressTable, existing.ID, existing.Version, now)
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, fmt.Sprintf("progress record %s is no longer latest", existing.ID)); err != nil {
				return err
			}
			superseded = existing
		}
		maxVersion, err := a.deps.Records.MaxVersion(dbc, in.KeyResultID)
		if err != nil {
			return err
		}

		rec := &progress.Record{
			ID:              uuid.New(),
			KeyResultID:     in.KeyResultID,
			ObjectiveID:     in.ObjectiveID,
			KeyResultName:   strings.TrimSpace(in.KeyResultName),
			Description:     in.Description,
			MetricType:      in.MetricType,
			TargetValue:     progress.Round2(in.TargetValue),
			StartingValue:   progress.Round2(in.StartingValue),
			CurrentValue:    progress.Round2(in.CurrentValue),
			UpdatedBy:       in.UpdatedBy,
			UpdateSource:    strings.TrimSpace(in.UpdateSource),
			MetricMetadata:  datatypes.JSON(in.MetricMetadata),
			Comment:         in.Comment,
			RecordedAt:      timeOr(in.RecordedAt, now),
			DueDate:         utcPtr(in.DueDate),
			ConfidenceScore: in.ConfidenceScore,
			Version:         maxVersion + 1,
			IsLatest:        true,
		}
		if rec.UpdateSource == "" {
			rec.UpdateSource = progress.SourceManual
		}
		rec.Recompute(a.deps.Policy, now)
		if err := a.deps.Records.Create(dbc, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if superseded != nil {
		a.deps.Base.Hooks.VersionRetired(op, superseded.KeyResultID, superseded.Version)
		a.deps.Base.Log.Info("progress record superseded by new baseline",
			"key_result_id", out.KeyResultID,
			"superseded_id", superseded.ID,
			"superseded_version", superseded.Version,
		)
	}
	a.deps.Base.Log.Info("progress record created",
		"key_result_id", out.KeyResultID,
		"record_id", out.ID,
		"version", out.Version,
		"status", out.Status,
		"updated_by", uuidString(out.UpdatedBy),
	)
	return out, nil
}

func (a *progressAggregate) ApplyUpdate(ctx context.Context, in domainagg.ApplyProgressUpdateInput) (domainagg.ApplyProgressUpdateResult, error) {
	const op = "progress.apply_update"
	if err := validatePatch(op, in.Patch); err != nil {
		return domainagg.ApplyProgressUpdateResult{}, err
	}

	now := a.deps.Base.Now().UTC()
	var result domainagg.ApplyProgressUpdateResult
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.deps.Records.GetByID(dbc, in.RecordID, true)
		if err != nil {
			return err
		}
		if rec == nil {
			return domainagg.NotFound(op, "progress record "+in.RecordID.String())
		}
		if in.Patch.ExpectedVersion != nil {
			if err := RequireVersionMatch(rec.Version, *in.Patch.ExpectedVersion); err != nil {
				return err
			}
		}

		if in.Patch.CurrentValue != nil && progress.Round2(*in.Patch.CurrentValue) != rec.CurrentValue {
			if !rec.IsLatest {
				return ConflictError(fmt.Sprintf("record %s is version %d and no longer the latest for key result %s", rec.ID, rec.Version, rec.KeyResultID))
			}
			ok, err := a.deps.Base.CASGuard.RetireLatest(dbc, progressTable, rec.ID, rec.Version, now)
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, fmt.Sprintf("record %s was superseded concurrently", rec.ID)); err != nil {
				return err
			}

			previous := *rec
			previous.IsLatest = false
			previous.UpdatedAt = now

			next := nextVersion(rec, in.Patch, now)
			next.Recompute(a.deps.Policy, now)
			if err := a.deps.Records.Create(dbc, next); err != nil {
				return err
			}
			result = domainagg.ApplyProgressUpdateResult{Record: next, Previous: &previous, NewVersion: true}
			return nil
		}

		mergeInPlace(rec, in.Patch)
		if err := a.deps.Records.Update(dbc, rec); err != nil {
			return err
		}
		result = domainagg.ApplyProgressUpdateResult{Record: rec}
		return nil
	})
	if err != nil {
		return domainagg.ApplyProgressUpdateResult{}, err
	}
	if result.NewVersion {
		a.deps.Base.Hooks.VersionRetired(op, result.Previous.KeyResultID, result.Previous.Version)
		a.deps.Base.Log.Info("progress version created",
			"key_result_id", result.Record.KeyResultID,
			"record_id", result.Record.ID,
			"previous_id", result.Previous.ID,
			"version", result.Record.Version,
			"status", result.Record.Status,
			"update_source", result.Record.UpdateSource,
			"updated_by", uuidString(result.Record.UpdatedBy),
		)
	} else {
		a.deps.Base.Log.Debug("progress record updated in place", "record_id", result.Record.ID, "version", result.Record.Version)
	}
	return result, nil
}

func (a *progressAggregate) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const op = "progress.soft_delete"
	now := a.deps.Base.Now().UTC()
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Records.SoftDelete(dbc, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return domainagg.NotFound(op, "progress record "+id.String())
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.deps.Base.Log.Info("progress record soft deleted", "record_id", id)
	return nil
}

func (a *progressAggregate) HardDelete(ctx context.Context, id uuid.UUID) (*progress.Record, error) {
	const op = "progress.hard_delete"
	var removed *progress.Record
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rec, err := a.deps.Records.GetByID(dbc, id, true)
		if err != nil {
			return err
		}
		ok, err := a.deps.Records.HardDelete(dbc, id)
		if err != nil {
			return err
		}
		if !ok {
			return domainagg.NotFound(op, "progress record "+id.String())
		}
		removed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.deps.Base.Log.Warn("progress record hard deleted", "record_id", id)
	return removed, nil
}

// nextVersion copies identity from prev and overlays the patch.
func nextVersion(prev *progress.Record, p domainagg.ProgressPatch, now time.Time) *progress.Record {
	next := &progress.Record{
		ID:              uuid.New(),
		KeyResultID:     prev.KeyResultID,
		ObjectiveID:     prev.ObjectiveID,
		KeyResultName:   prev.KeyResultName,
		Description:     prev.Description,
		MetricType:      prev.MetricType,
		TargetValue:     prev.TargetValue,
		StartingValue:   prev.StartingValue,
		CurrentValue:    progress.Round2(*p.CurrentValue),
		UpdatedBy:       p.UpdatedBy,
		UpdateSource:    progress.SourceManual,
		MetricMetadata:  prev.MetricMetadata,
		RecordedAt:      timeOr(p.RecordedAt, now),
		DueDate:         prev.DueDate,
		ConfidenceScore: prev.ConfidenceScore,
		Version:         prev.Version + 1,
		IsLatest:        true,
	}
	if p.UpdateSource != nil && strings.TrimSpace(*p.UpdateSource) != "" {
		next.UpdateSource = strings.TrimSpace(*p.UpdateSource)
	}
	if len(p.MetricMetadata) > 0 {
		next.MetricMetadata = datatypes.JSON(p.MetricMetadata)
	}
	if p.Comment != nil {
		next.Comment = *p.Comment
	}
	if p.ConfidenceScore != nil {
		next.ConfidenceScore = p.ConfidenceScore
	}
	return next
}

// mergeInPlace applies non-value fields. Percentage and status are left
// alone unless status is overridden explicitly.
func mergeInPlace(rec *progress.Record, p domainagg.ProgressPatch) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.UpdatedBy != nil {
		rec.UpdatedBy = p.UpdatedBy
	}
	if p.UpdateSource != nil {
		rec.UpdateSource = strings.TrimSpace(*p.UpdateSource)
	}
	if len(p.MetricMetadata) > 0 {
		rec.MetricMetadata = datatypes.JSON(p.MetricMetadata)
	}
	if p.Comment != nil {
		rec.Comment = *p.Comment
	}
	if p.RecordedAt != nil {
		rec.RecordedAt = p.RecordedAt.UTC()
	}
	if p.ConfidenceScore != nil {
		rec.ConfidenceScore = p.ConfidenceScore
	}
}

func validateCreate(op string, in domainagg.CreateProgressInput) error {
	var fields []domainagg.FieldError
	if in.KeyResultID == uuid.Nil {
		fields = append(fields, domainagg.FieldError{Field: "keyResultId", Message: "must be a UUID"})
	}
	if in.ObjectiveID == uuid.Nil {
		fields = append(fields, domainagg.FieldError{Field: "objectiveId", Message: "must be a UUID"})
	}
	name := strings.TrimSpace(in.KeyResultName)
	if name == "" {
		fields = append(fields, domainagg.FieldError{Field: "keyResultName", Message: "is required"})
	} else if len(name) > 255 {
		fields = append(fields, domainagg.FieldError{Field: "keyResultName", Message: "must be at most 255 characters"})
	}
	if !in.MetricType.Valid() {
		fields = append(fields, domainagg.FieldError{Field: "metricType", Message: "must be one of percentage, absolute, boolean, currency"})
	}
	fields = appendNumberErrors(fields, "targetValue", in.TargetValue)
	fields = appendNumberErrors(fields, "startingValue", in.StartingValue)
	fields = appendNumberErrors(fields, "currentValue", in.CurrentValue)
	fields = appendConfidenceErrors(fields, in.ConfidenceScore)
	fields = appendMetadataErrors(fields, in.MetricMetadata)
	if len(fields) > 0 {
		return domainagg.NewValidation(op, fields...)
	}
	return nil
}

func validatePatch(op string, p domainagg.ProgressPatch) error {
	var fields []domainagg.FieldError
	if p.CurrentValue != nil {
		fields = appendNumberErrors(fields, "currentValue", *p.CurrentValue)
	}
	if p.Status != nil && !p.Status.Valid() {
		fields = append(fields, domainagg.FieldError{Field: "status", Message: "must be one of on_track, at_risk, off_track, completed"})
	}
	if p.ExpectedVersion != nil && *p.ExpectedVersion < 1 {
		fields = append(fields, domainagg.FieldError{Field: "version", Message: "must be >= 1"})
	}
	fields = appendConfidenceErrors(fields, p.ConfidenceScore)
	fields = appendMetadataErrors(fields, p.MetricMetadata)
	if len(fields) > 0 {
		return domainagg.NewValidation(op, fields...)
	}
	return nil
}

// numeric(15,2) holds at most 13 integer digits.
const maxStoredValue = 1e13

func appendNumberErrors(fields []domainagg.FieldError, name string, v float64) []domainagg.FieldError {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return append(fields, domainagg.FieldError{Field: name, Message: "must be a finite number"})
	case math.Abs(v) >= maxStoredValue:
		return append(fields, domainagg.FieldError{Field: name, Message: "is out of range"})
	}
	return fields
}

func appendConfidenceErrors(fields []domainagg.FieldError, score *int) []domainagg.FieldError {
	if score != nil && (*score < 0 || *score > 100) {
		return append(fields, domainagg.FieldError{Field: "confidenceScore", Message: "must be between 0 and 100"})
	}
	return fields
}

func appendMetadataErrors(fields []domainagg.FieldError, raw json.RawMessage) []domainagg.FieldError {
	if len(raw) == 0 {
		return fields
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return append(fields, domainagg.FieldError{Field: "metricMetadata", Message: "must be a JSON object"})
	}
	return fields
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
