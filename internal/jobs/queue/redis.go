package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"queue_key"`
}

// OpenRedis dials and pings Redis.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisQueue is a reliable list queue. Ready jobs live in <key>, claimed
// jobs in <key>:processing until acked, retries in the <key>:delayed sorted
// set scored by due time, and exhausted jobs in <key>:dead.
//
// Every claim takes a lease in <key>:leases scored by its visibility
// deadline. A worker that dies mid-job leaves an expired lease behind, and
// the next sweep puts the job back on the ready list as a spent attempt.
type RedisQueue struct {
	rdb         goredis.UniversalClient
	log         *logger.Logger
	key         string
	maxAttempts int
	visibility  time.Duration
	now         func() time.Time

	mu        sync.Mutex
	nextSweep time.Time
}

func NewRedisQueue(rdb goredis.UniversalClient, baseLog *logger.Logger, key string, maxAttempts int, visibility time.Duration) *RedisQueue {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "krt:jobs"
	}
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	return &RedisQueue{
		rdb:         rdb,
		log:         baseLog.With("component", "RedisQueue"),
		key:         key,
		maxAttempts: maxAttempts,
		visibility:  visibility,
		now:         time.Now,
	}
}

func (q *RedisQueue) Backend() string { return BackendRedis }

func (q *RedisQueue) processingKey() string { return q.key + ":processing" }
func (q *RedisQueue) delayedKey() string    { return q.key + ":delayed" }
func (q *RedisQueue) deadKey() string       { return q.key + ":dead" }
func (q *RedisQueue) leasesKey() string     { return q.key + ":leases" }

func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	job, err := newJob(ctx, uuid.NewString(), name, payload, q.maxAttempts)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return "", fmt.Errorf("redis enqueue %s: %w", name, err)
	}
	return job.ID, nil
}

func (q *RedisQueue) Claim(ctx context.Context) (*Job, error) {
	if q.sweepDue() {
		if err := q.reclaimExpired(ctx); err != nil {
			q.log.Warn("redis lease sweep failed", "error", err)
		}
	}
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}
	raw, err := q.rdb.LMove(ctx, q.key, q.processingKey(), "RIGHT", "LEFT").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis claim: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Unreadable entries go straight to the dead list.
		q.log.Warn("dropping malformed job", "error", err)
		_, _ = q.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.LRem(ctx, q.processingKey(), 1, raw)
			p.LPush(ctx, q.deadKey(), raw)
			return nil
		})
		return nil, nil
	}
	// A lease that fails to land here is picked up by the next sweep.
	deadline := q.now().Add(q.visibility)
	if err := q.rdb.ZAdd(ctx, q.leasesKey(), goredis.Z{Score: float64(deadline.UnixMilli()), Member: raw}).Err(); err != nil {
		q.log.Warn("redis lease not recorded", "job_id", job.ID, "error", err)
	}
	job.receipt = raw
	job.Attempts++
	return &job, nil
}

// sweepDue rate-limits lease sweeps to a few per visibility window.
func (q *RedisQueue) sweepDue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	if now.Before(q.nextSweep) {
		return false
	}
	q.nextSweep = now.Add(q.visibility / 4)
	return true
}

// reclaimExpired returns jobs whose lease ran out to the ready list, or to
// the dead list when the lost attempt was their last. Processing entries
// with no lease at all get one, so they expire on a later sweep.
func (q *RedisQueue) reclaimExpired(ctx context.Context) error {
	now := q.now()
	expired, err := q.rdb.ZRangeByScore(ctx, q.leasesKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis leases: %w", err)
	}
	for _, raw := range expired {
		removed, err := q.rdb.ZRem(ctx, q.leasesKey(), raw).Result()
		if err != nil {
			return fmt.Errorf("redis leases: %w", err)
		}
		if removed == 0 {
			continue
		}
		held, err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Result()
		if err != nil {
			return fmt.Errorf("redis leases: %w", err)
		}
		if held == 0 {
			continue
		}
		q.requeueLost(ctx, raw)
	}

	processing, err := q.rdb.LRange(ctx, q.processingKey(), 0, 199).Result()
	if err != nil {
		return fmt.Errorf("redis leases: %w", err)
	}
	deadline := float64(now.Add(q.visibility).UnixMilli())
	for _, raw := range processing {
		if err := q.rdb.ZAddNX(ctx, q.leasesKey(), goredis.Z{Score: deadline, Member: raw}).Err(); err != nil {
			return fmt.Errorf("redis leases: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) requeueLost(ctx context.Context, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		_ = q.rdb.LPush(ctx, q.deadKey(), raw).Err()
		return
	}
	job.Attempts++
	if job.Exhausted() {
		q.log.Warn("job lease expired on final attempt", "job", job.Name, "job_id", job.ID, "attempts", job.Attempts)
		dead, _ := json.Marshal(struct {
			*Job
			Error string `json:"error,omitempty"`
		}{Job: &job, Error: "visibility timeout"})
		_ = q.rdb.LPush(ctx, q.deadKey(), dead).Err()
		return
	}
	next, err := json.Marshal(&job)
	if err != nil {
		return
	}
	if err := q.rdb.RPush(ctx, q.key, next).Err(); err != nil {
		q.log.Error("requeue after lease expiry failed", "job_id", job.ID, "error", err)
		return
	}
	q.log.Warn("job lease expired; requeued", "job", job.Name, "job_id", job.ID, "attempts", job.Attempts)
}

// promoteDue moves retries whose time has come back onto the ready list.
// ZRem decides the winner when several workers race on the same entry.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis promote: %w", err)
	}
	for _, member := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return fmt.Errorf("redis promote: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.RPush(ctx, q.key, member).Err(); err != nil {
			return fmt.Errorf("redis promote: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, q.processingKey(), 1, job.receipt)
		p.ZRem(ctx, q.leasesKey(), job.receipt)
		return nil
	})
	return err
}

func (q *RedisQueue) Retry(ctx context.Context, job *Job, _ error, at time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, q.processingKey(), 1, job.receipt)
		p.ZRem(ctx, q.leasesKey(), job.receipt)
		p.ZAdd(ctx, q.delayedKey(), goredis.Z{Score: float64(at.UnixMilli()), Member: string(raw)})
		return nil
	})
	return err
}

func (q *RedisQueue) Dead(ctx context.Context, job *Job, cause error) error {
	raw, err := json.Marshal(struct {
		*Job
		Error string `json:"error,omitempty"`
	}{Job: job, Error: errString(cause)})
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, q.processingKey(), 1, job.receipt)
		p.ZRem(ctx, q.leasesKey(), job.receipt)
		p.LPush(ctx, q.deadKey(), raw)
		p.LTrim(ctx, q.deadKey(), 0, 49)
		return nil
	})
	return err
}

// Depth reports ready, processing, delayed and dead counts.
func (q *RedisQueue) Depth(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	ready, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return nil, err
	}
	out["ready"] = ready
	if out["processing"], err = q.rdb.LLen(ctx, q.processingKey()).Result(); err != nil {
		return nil, err
	}
	if out["delayed"], err = q.rdb.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return nil, err
	}
	if out["dead"], err = q.rdb.LLen(ctx, q.deadKey()).Result(); err != nil {
		return nil, err
	}
	return out, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
