package jobrun

import (
	"time"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
)

const ActivityRun = "KeyResultJobRun"

// RetryPolicy mirrors the worker pool: three attempts, doubling from 2s.
type RetryPolicy struct {
	MaximumAttempts    int32
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaximumAttempts:    queue.DefaultMaxAttempts,
		InitialInterval:    queue.DefaultBackoff,
		BackoffCoefficient: 2,
		MaximumInterval:    time.Minute,
	}
}
