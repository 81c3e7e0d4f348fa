package services

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

const (
	UpdateSourceWebhook = "webhook"

	defaultConflictRetries = 3
	defaultConflictBackoff = 10 * time.Millisecond
	maxConflictBackoff     = 250 * time.Millisecond
	conflictJitterFactor   = 0.25
	defaultBatchCacheSize  = 256
	defaultBatchCacheTTL   = 10 * time.Minute

	internalItemError = "internal error"
)

type MetricUpdateRequest struct {
	KeyResultID string          `json:"keyResultId"`
	MetricValue *float64        `json:"metricValue"`
	Source      string          `json:"source"`
	Metadata    json.RawMessage `json:"metadata"`
	Timestamp   string          `json:"timestamp"`
	Comment     string          `json:"comment"`
}

type BulkMetricUpdateRequest struct {
	Updates   []MetricUpdateRequest `json:"updates"`
	BatchID   string                `json:"batchId"`
	Timestamp string                `json:"timestamp"`
}

type BulkItemResult struct {
	KeyResultID string         `json:"keyResultId"`
	Success     bool           `json:"success"`
	Data        *progress.View `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type BulkResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

type WebhookConfig struct {
	ConflictRetries int
	// ConflictBackoff is the first delay between conflict retries; it doubles
	// per attempt with jitter.
	ConflictBackoff time.Duration
	BatchCacheSize  int
	BatchCacheTTL   time.Duration
}

func (c WebhookConfig) withDefaults() WebhookConfig {
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = defaultConflictRetries
	}
	if c.ConflictBackoff <= 0 {
		c.ConflictBackoff = defaultConflictBackoff
	}
	if c.BatchCacheSize <= 0 {
		c.BatchCacheSize = defaultBatchCacheSize
	}
	if c.BatchCacheTTL <= 0 {
		c.BatchCacheTTL = defaultBatchCacheTTL
	}
	return c
}

type WebhookService interface {
	HandleMetric(ctx context.Context, req MetricUpdateRequest) (*progress.View, error)
	HandleBulk(ctx context.Context, req BulkMetricUpdateRequest) (*BulkResult, error)
}

type webhookService struct {
	log      *logger.Logger
	progress ProgressService
	emitter  JobEmitter
	metrics  *observability.Metrics
	cfg      WebhookConfig
	batches  *expirable.LRU[string, *BulkResult]
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewWebhookService(
	baseLog *logger.Logger,
	progressSvc ProgressService,
	emitter JobEmitter,
	metrics *observability.Metrics,
	cfg WebhookConfig,
) WebhookService {
	cfg = cfg.withDefaults()
	return &webhookService{
		log:      baseLog.With("service", "WebhookService"),
		progress: progressSvc,
		emitter:  emitter,
		metrics:  metrics,
		cfg:      cfg,
		batches:  expirable.NewLRU[string, *BulkResult](cfg.BatchCacheSize, nil, cfg.BatchCacheTTL),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (s *webhookService) HandleMetric(ctx context.Context, req MetricUpdateRequest) (*progress.View, error) {
	view, err := s.handle(ctx, req)
	s.metrics.IncWebhookItem("single", outcomeOf(err))
	return view, err
}

func (s *webhookService) HandleBulk(ctx context.Context, req BulkMetricUpdateRequest) (*BulkResult, error) {
	const op = "webhook.bulk"
	var fe fieldErrors
	if req.Updates == nil {
		fe.add("updates", "is required")
	}
	fe.optionalTime("timestamp", req.Timestamp)
	if err := fe.err(op); err != nil {
		return nil, err
	}

	batchID := strings.TrimSpace(req.BatchID)
	if batchID != "" {
		if cached, ok := s.batches.Get(batchID); ok {
			s.log.Info("bulk batch replayed from cache",
				append([]interface{}{"batch_id", batchID, "items", len(cached.Results)}, ctxutil.TraceFields(ctx)...)...)
			return cached, nil
		}
	}

	out := &BulkResult{Results: make([]BulkItemResult, 0, len(req.Updates))}
	for _, item := range req.Updates {
		view, err := s.handle(ctx, item)
		s.metrics.IncWebhookItem("bulk", outcomeOf(err))
		res := BulkItemResult{KeyResultID: item.KeyResultID}
		if err != nil {
			out.Failed++
			res.Error = bulkItemError(err)
			s.log.Warn("bulk item failed",
				append([]interface{}{"key_result_id", item.KeyResultID, "code", domainagg.CodeOf(err), "error", err}, ctxutil.TraceFields(ctx)...)...)
		} else {
			out.Processed++
			res.Success = true
			res.Data = view
		}
		out.Results = append(out.Results, res)
	}

	if batchID != "" {
		s.batches.Add(batchID, out)
	}
	s.log.Info("bulk metric update done",
		append([]interface{}{"batch_id", batchID, "processed", out.Processed, "failed", out.Failed}, ctxutil.TraceFields(ctx)...)...)
	return out, nil
}

func (s *webhookService) handle(ctx context.Context, req MetricUpdateRequest) (*progress.View, error) {
	const op = "webhook.metric_update"
	var fe fieldErrors
	keyResultID := fe.requiredUUID("keyResultId", req.KeyResultID)
	if req.MetricValue == nil {
		fe.add("metricValue", "is required")
	}
	ts := fe.optionalTime("timestamp", req.Timestamp)
	if len(req.Metadata) > 0 && !isJSONObject(req.Metadata) {
		fe.add("metadata", "must be a JSON object")
	}
	if err := fe.err(op); err != nil {
		return nil, err
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = UpdateSourceWebhook
	}
	observedAt := s.now().UTC()
	if ts != nil {
		observedAt = *ts
	}

	// The key result must exist before anything is queued.
	if _, err := s.progress.GetLatest(ctx, keyResultID.String()); err != nil {
		return nil, err
	}
	s.emitMetricEvent(ctx, keyResultID, *req.MetricValue, source, req.Metadata, observedAt, req.Comment)

	patch := domainagg.ProgressPatch{
		CurrentValue:   req.MetricValue,
		UpdateSource:   &source,
		MetricMetadata: req.Metadata,
		RecordedAt:     &observedAt,
	}
	if req.Comment != "" {
		comment := req.Comment
		patch.Comment = &comment
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		view, err := s.progress.ApplyToLatest(ctx, keyResultID, patch)
		if err == nil {
			return view, nil
		}
		if !domainagg.IsCode(err, domainagg.CodeConflict) {
			return nil, err
		}
		lastErr = err
		if attempt == s.cfg.ConflictRetries {
			break
		}
		delay := conflictBackoff(s.cfg.ConflictBackoff, attempt)
		s.log.Debug("webhook update lost latest race, retrying",
			append([]interface{}{"key_result_id", keyResultID, "attempt", attempt + 1, "delay", delay}, ctxutil.TraceFields(ctx)...)...)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, domainagg.Wrap(domainagg.CodeRetryable, op, err)
		}
	}
	return nil, lastErr
}

// conflictBackoff doubles base per attempt, caps it, and spreads it by
// conflictJitterFactor so racing deliveries do not retry in lockstep.
func conflictBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(maxConflictBackoff) {
		delay = float64(maxConflictBackoff)
	}
	jitter := delay * conflictJitterFactor
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// bulkItemError is the per-item message returned to the caller. Internal
// failures are logged in full but not echoed back.
func bulkItemError(err error) string {
	switch domainagg.CodeOf(err) {
	case domainagg.CodeInternal, "":
		return internalItemError
	}
	return err.Error()
}

func (s *webhookService) emitMetricEvent(ctx context.Context, keyResultID uuid.UUID, value float64, source string, metadata json.RawMessage, at time.Time, comment string) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, jobs.JobProcessMetricUpdate, jobs.MetricUpdatePayload{
		KeyResultID: keyResultID,
		MetricValue: value,
		Source:      source,
		Metadata:    metadata,
		Timestamp:   at,
		Comment:     comment,
	})
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domainagg.CodeOf(err))
}

func isJSONObject(raw json.RawMessage) bool {
	var m map[string]any
	return json.Unmarshal(raw, &m) == nil && m != nil
}
