package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultHeapLimit = 300 << 20

type HealthHandlerDeps struct {
	DB    *gorm.DB
	Redis goredis.UniversalClient
	// HeapLimitBytes fails /health when the Go heap grows past it.
	HeapLimitBytes uint64
}

type HealthHandler struct {
	db        *gorm.DB
	redis     goredis.UniversalClient
	heapLimit uint64
}

func NewHealthHandlerWithDeps(deps HealthHandlerDeps) *HealthHandler {
	limit := deps.HeapLimitBytes
	if limit == 0 {
		limit = defaultHeapLimit
	}
	return &HealthHandler{db: deps.DB, redis: deps.Redis, heapLimit: limit}
}

type checkResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthReport struct {
	Status  string                 `json:"status"`
	Details map[string]checkResult `json:"details"`
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	h.respond(c, map[string]func(context.Context) error{
		"database":    h.pingDB,
		"memory_heap": h.checkHeap,
	})
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]func(context.Context) error{"database": h.pingDB}
	if h.redis != nil {
		checks["redis"] = h.pingRedis
	}
	h.respond(c, checks)
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, healthReport{Status: "ok", Details: map[string]checkResult{}})
}

func (h *HealthHandler) respond(c *gin.Context, checks map[string]func(context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	report := healthReport{Status: "ok", Details: make(map[string]checkResult, len(checks))}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			report.Status = "error"
			report.Details[name] = checkResult{Status: "down", Detail: err.Error()}
			continue
		}
		report.Details[name] = checkResult{Status: "up"}
	}
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return errNotConfigured
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) pingRedis(ctx context.Context) error {
	return h.redis.Ping(ctx).Err()
}

func (h *HealthHandler) checkHeap(context.Context) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > h.heapLimit {
		return &heapError{used: ms.HeapAlloc, limit: h.heapLimit}
	}
	return nil
}
