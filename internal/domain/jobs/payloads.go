package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job names shared by every queue backend and the worker registry.
const (
	JobCalculateTrends     = "key_result.calculate_trends"
	JobProcessMetricUpdate = "key_result.process_metric_update"
)

// CalculateTrendsPayload asks the worker to recompute the trend snapshot of
// a key result after a create or a value change.
type CalculateTrendsPayload struct {
	KeyResultID uuid.UUID `json:"keyResultId"`
	ProgressID  uuid.UUID `json:"progressId"`
	Version     int       `json:"version"`
}

// MetricUpdatePayload is the raw webhook event as received.
type MetricUpdatePayload struct {
	KeyResultID uuid.UUID       `json:"keyResultId"`
	MetricValue float64         `json:"metricValue"`
	Source      string          `json:"source"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Comment     string          `json:"comment,omitempty"`
}
