package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

// Clients holds the optional network clients a queue backend needs.
type Clients struct {
	Redis    *goredis.Client
	Temporal temporalsdkclient.Client
}

func (c Clients) Close(log *logger.Logger) {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
}

// openQueue builds the configured backend. Memory jobs only survive for the
// life of the process, so a separate worker process cannot drain them.
func openQueue(ctx context.Context, log *logger.Logger, cfg Config, r Repos, clients *Clients) (queue.Queue, error) {
	backend := strings.ToLower(cfg.Queue.Backend)
	maxAttempts := cfg.Queue.MaxAttempts
	switch backend {
	case queue.BackendMemory:
		return queue.NewMemory(maxAttempts), nil
	case queue.BackendDB:
		return queue.NewDBQueue(r.JobRuns, maxAttempts, cfg.Queue.StaleRunning), nil
	case queue.BackendRedis:
		if clients.Redis == nil {
			rdb, err := queue.OpenRedis(ctx, cfg.Queue.Redis)
			if err != nil {
				return nil, fmt.Errorf("open redis: %w", err)
			}
			clients.Redis = rdb
		}
		return queue.NewRedisQueue(clients.Redis, log, cfg.Queue.Redis.Key, maxAttempts, cfg.Queue.StaleRunning), nil
	case queue.BackendTemporal:
		if clients.Temporal == nil {
			return nil, fmt.Errorf("temporal backend selected but no client is configured")
		}
		return queue.NewTemporalQueue(clients.Temporal, cfg.Temporal.TaskQueue, maxAttempts), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}
