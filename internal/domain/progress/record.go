package progress

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusOnTrack   Status = "on_track"
	StatusAtRisk    Status = "at_risk"
	StatusOffTrack  Status = "off_track"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnTrack, StatusAtRisk, StatusOffTrack, StatusCompleted:
		return true
	}
	return false
}

type MetricType string

const (
	MetricPercentage MetricType = "percentage"
	MetricAbsolute   MetricType = "absolute"
	MetricBoolean    MetricType = "boolean"
	MetricCurrency   MetricType = "currency"
)

func (m MetricType) Valid() bool {
	switch m {
	case MetricPercentage, MetricAbsolute, MetricBoolean, MetricCurrency:
		return true
	}
	return false
}

const (
	SourceManual      = "manual"
	SourceWebhook     = "webhook"
	SourceIntegration = "integration"
	SourceAutomated   = "automated"
)

// Record is one immutable snapshot of a key result's measured state.
// Only the latest record of a key result is ever mutated in place, and
// only for non-value fields.
type Record struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	KeyResultID        uuid.UUID      `gorm:"type:uuid;column:key_result_id;not null;index" json:"keyResultId"`
	ObjectiveID        uuid.UUID      `gorm:"type:uuid;column:objective_id;not null;index" json:"objectiveId"`
	KeyResultName      string         `gorm:"column:key_result_name;type:varchar(255);not null" json:"keyResultName"`
	Description        string         `gorm:"column:description;type:text" json:"description,omitempty"`
	MetricType         MetricType     `gorm:"column:metric_type;type:varchar(32);not null;default:percentage" json:"metricType"`
	TargetValue        float64        `gorm:"column:target_value;type:numeric(15,2);not null" json:"targetValue"`
	StartingValue      float64        `gorm:"column:starting_value;type:numeric(15,2);not null;default:0" json:"startingValue"`
	CurrentValue       float64        `gorm:"column:current_value;type:numeric(15,2);not null" json:"currentValue"`
	ProgressPercentage float64        `gorm:"column:progress_percentage;type:numeric(5,2);not null;default:0" json:"progressPercentage"`
	Status             Status         `gorm:"column:status;type:varchar(32);not null;default:on_track;index" json:"status"`
	UpdatedBy          *uuid.UUID     `gorm:"type:uuid;column:updated_by" json:"updatedBy,omitempty"`
	UpdateSource       string         `gorm:"column:update_source;type:varchar(255)" json:"updateSource,omitempty"`
	MetricMetadata     datatypes.JSON `gorm:"column:metric_metadata" json:"metricMetadata,omitempty"`
	Comment            string         `gorm:"column:comment;type:text" json:"comment,omitempty"`
	RecordedAt         time.Time      `gorm:"column:recorded_at;not null" json:"recordedAt"`
	DueDate            *time.Time     `gorm:"column:due_date;type:date" json:"dueDate,omitempty"`
	ConfidenceScore    *int           `gorm:"column:confidence_score" json:"confidenceScore,omitempty"`
	Version            int            `gorm:"column:version;not null;default:1" json:"version"`
	IsLatest           bool           `gorm:"column:is_latest;not null;index" json:"isLatest"`
	CreatedAt          time.Time      `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `gorm:"column:deleted_at;index" json:"deletedAt,omitempty"`
}

func (Record) TableName() string { return "key_result_progress" }

// Recompute derives percentage and status from the record's values.
// The stored percentage is rounded to two decimals and status is derived
// from the rounded value so reads and writes agree.
func (r *Record) Recompute(policy Policy, now time.Time) {
	r.ProgressPercentage = Round2(Percentage(r.StartingValue, r.CurrentValue, r.TargetValue))
	r.Status = policy.Classify(r.ProgressPercentage, r.DueDate, r.CurrentValue, r.TargetValue, now)
}

// TrendSnapshot is the last asynchronously computed summary of a key result.
type TrendSnapshot struct {
	KeyResultID             uuid.UUID  `gorm:"type:uuid;column:key_result_id;primaryKey" json:"keyResultId"`
	ObjectiveID             uuid.UUID  `gorm:"type:uuid;column:objective_id;not null;index" json:"objectiveId"`
	CurrentProgress         float64    `gorm:"column:current_progress;type:numeric(5,2);not null" json:"currentProgress"`
	Status                  Status     `gorm:"column:status;type:varchar(32);not null" json:"status"`
	TotalUpdates            int        `gorm:"column:total_updates;not null" json:"totalUpdates"`
	LatestVersion           int        `gorm:"column:latest_version;not null" json:"latestVersion"`
	AverageProgressRate     *float64   `gorm:"column:average_progress_rate" json:"averageProgressRate,omitempty"`
	EstimatedCompletionDate *time.Time `gorm:"column:estimated_completion_date" json:"estimatedCompletionDate,omitempty"`
	IsOnTrack               bool       `gorm:"column:is_on_track;not null" json:"isOnTrack"`
	SourceJob               string     `gorm:"column:source_job;type:varchar(128)" json:"sourceJob"`
	ComputedAt              time.Time  `gorm:"column:computed_at;not null" json:"computedAt"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (TrendSnapshot) TableName() string { return "key_result_trend" }

// SnapshotFromSummary converts a summary into a persisted trend row.
func SnapshotFromSummary(s Summary, latestVersion int, sourceJob string, now time.Time) TrendSnapshot {
	return TrendSnapshot{
		KeyResultID:             s.KeyResultID,
		ObjectiveID:             s.ObjectiveID,
		CurrentProgress:         s.CurrentProgress,
		Status:                  s.Status,
		TotalUpdates:            s.TotalUpdates,
		LatestVersion:           latestVersion,
		AverageProgressRate:     s.AverageProgressRate,
		EstimatedCompletionDate: s.EstimatedCompletionDate,
		IsOnTrack:               s.IsOnTrack,
		SourceJob:               sourceJob,
		ComputedAt:              now,
	}
}
