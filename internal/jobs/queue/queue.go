// Package queue carries recalculation jobs from request handlers to the
// worker pool. Backends differ in durability; the contract is the same:
// Enqueue hands a named payload over and returns an id, and sources hand
// claimed jobs to workers with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
)

const (
	BackendRedis    = "redis"
	BackendDB       = "db"
	BackendTemporal = "temporal"
	BackendMemory   = "memory"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Job is one unit of queued work as seen by a worker.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	TraceID     string          `json:"traceId,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`

	receipt string
}

func (j *Job) Decode(v any) error {
	if j == nil || len(j.Payload) == 0 {
		return fmt.Errorf("empty job payload")
	}
	return json.Unmarshal(j.Payload, v)
}

// Exhausted reports whether the current attempt was the last allowed one.
func (j *Job) Exhausted() bool {
	max := j.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return j.Attempts >= max
}

type Queue interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
	Backend() string
}

// Source is a queue a worker pool can pull from. Claim returns (nil, nil)
// when nothing is due.
type Source interface {
	Claim(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, cause error, at time.Time) error
	Dead(ctx context.Context, job *Job, cause error) error
}

// Backoff returns the delay before the next attempt: base, 2*base, 4*base...
func Backoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16
	}
	return base << (attempts - 1)
}

func newJob(ctx context.Context, id, name string, payload any, maxAttempts int) (*Job, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	traceID, requestID := traceIDs(ctx)
	return &Job{
		ID:          id,
		Name:        name,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		TraceID:     traceID,
		RequestID:   requestID,
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return raw, nil
}

func traceIDs(ctx context.Context) (string, string) {
	var traceID, requestID string
	if td := ctxutil.GetTraceData(ctx); td != nil {
		traceID, requestID = td.TraceID, td.RequestID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return traceID, requestID
}
