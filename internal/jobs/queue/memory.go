package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type delayedJob struct {
	job *Job
	at  time.Time
}

// MemoryQueue keeps jobs in process. Jobs are lost on restart; it backs
// local runs and tests.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       []*Job
	delayed     []delayedJob
	dead        []*Job
	maxAttempts int
	now         func() time.Time
}

func NewMemory(maxAttempts int) *MemoryQueue {
	return &MemoryQueue{maxAttempts: maxAttempts, now: time.Now}
}

func (q *MemoryQueue) Backend() string { return BackendMemory }

func (q *MemoryQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	job, err := newJob(ctx, uuid.NewString(), name, payload, q.maxAttempts)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	q.ready = append(q.ready, job)
	q.mu.Unlock()
	return job.ID, nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.at.After(now) {
			q.ready = append(q.ready, d.job)
			continue
		}
		kept = append(kept, d)
	}
	q.delayed = kept

	if len(q.ready) == 0 {
		return nil, nil
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	job.Attempts++
	return job, nil
}

func (q *MemoryQueue) Ack(context.Context, *Job) error { return nil }

func (q *MemoryQueue) Retry(_ context.Context, job *Job, _ error, at time.Time) error {
	q.mu.Lock()
	q.delayed = append(q.delayed, delayedJob{job: job, at: at})
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Dead(_ context.Context, job *Job, _ error) error {
	q.mu.Lock()
	q.dead = append(q.dead, job)
	q.mu.Unlock()
	return nil
}

// Pending returns queued and delayed jobs in claim order.
func (q *MemoryQueue) Pending() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0, len(q.ready)+len(q.delayed))
	out = append(out, q.ready...)
	for _, d := range q.delayed {
		out = append(out, d.job)
	}
	return out
}

func (q *MemoryQueue) DeadJobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.dead...)
}
