package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusDead      = "dead"
)

// JobRun is one recalculation job held by the database-backed queue.
type JobRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobName     string         `gorm:"column:job_name;not null;index" json:"job_name"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	TraceID     string         `gorm:"column:trace_id" json:"trace_id,omitempty"`
	RequestID   string         `gorm:"column:request_id" json:"request_id,omitempty"`
	RunAt       time.Time      `gorm:"column:run_at;not null;index" json:"run_at"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
