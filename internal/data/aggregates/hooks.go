package aggregates

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

// Hooks receives the outcome of every progress write after its transaction
// has finished.
type Hooks interface {
	ObserveOperation(op, status string, dur time.Duration)
	IncConflict(op string)
	IncRetry(op string)
	// VersionRetired fires once a record lost its latest flag to a newer
	// version of the same key result.
	VersionRetired(op string, keyResultID uuid.UUID, version int)
}

// WriteMetrics is satisfied by *observability.Metrics.
type WriteMetrics interface {
	ObserveAggregateOperation(op, status string, dur time.Duration)
	IncAggregateConflict(op string)
	IncAggregateRetry(op string)
	IncVersionRetired(op string)
}

type nopHooks struct{}

func (nopHooks) ObserveOperation(string, string, time.Duration) {}
func (nopHooks) IncConflict(string)                             {}
func (nopHooks) IncRetry(string)                                {}
func (nopHooks) VersionRetired(string, uuid.UUID, int)          {}

type progressHooks struct {
	metrics WriteMetrics
	log     *logger.Logger
}

// NewProgressHooks records write outcomes into metrics and logs guard
// conflicts. A nil metrics still logs.
func NewProgressHooks(metrics *observability.Metrics, log *logger.Logger) Hooks {
	if log == nil {
		log = logger.Nop()
	}
	h := &progressHooks{log: log.With("component", "ProgressHooks")}
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

func (h *progressHooks) ObserveOperation(op, status string, dur time.Duration) {
	if h.metrics != nil {
		h.metrics.ObserveAggregateOperation(op, status, dur)
	}
}

func (h *progressHooks) IncConflict(op string) {
	h.log.Debug("progress write lost a concurrency guard", "operation", op)
	if h.metrics != nil {
		h.metrics.IncAggregateConflict(op)
	}
}

func (h *progressHooks) IncRetry(op string) {
	h.log.Warn("progress write failed with a retryable store error", "operation", op)
	if h.metrics != nil {
		h.metrics.IncAggregateRetry(op)
	}
}

func (h *progressHooks) VersionRetired(op string, keyResultID uuid.UUID, version int) {
	h.log.Debug("progress version retired", "operation", op, "key_result_id", keyResultID, "version", version)
	if h.metrics != nil {
		h.metrics.IncVersionRetired(op)
	}
}
