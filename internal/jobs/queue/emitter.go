package queue

import (
	"context"
	"sync"
	"time"

	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type EmitterConfig struct {
	Buffer  int           `yaml:"buffer"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

type emitRequest struct {
	ctx     context.Context
	name    string
	payload any
}

// Emitter decouples request handling from the queue. Emit never blocks:
// when the buffer is full the job is dropped with a warning and a metric.
type Emitter struct {
	q       Queue
	log     *logger.Logger
	metrics *observability.Metrics
	cfg     EmitterConfig
	ch      chan emitRequest
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func NewEmitter(q Queue, baseLog *logger.Logger, metrics *observability.Metrics, cfg EmitterConfig) *Emitter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Emitter{
		q:       q,
		log:     baseLog.With("component", "JobEmitter"),
		metrics: metrics,
		cfg:     cfg,
		ch:      make(chan emitRequest, cfg.Buffer),
	}
}

// Emit schedules an enqueue and reports whether it was accepted.
func (e *Emitter) Emit(ctx context.Context, name string, payload any) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	req := emitRequest{ctx: context.WithoutCancel(ctx), name: name, payload: payload}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.metrics.IncJobEmitted(name, "dropped")
		e.log.Warn("job dropped: emitter stopped",
			append([]interface{}{"job", name}, ctxutil.TraceFields(ctx)...)...)
		return false
	}
	select {
	case e.ch <- req:
		return true
	default:
		e.metrics.IncJobEmitted(name, "dropped")
		e.log.Warn("job dropped: emit buffer full",
			append([]interface{}{"job", name, "buffer", e.cfg.Buffer}, ctxutil.TraceFields(ctx)...)...)
		return false
	}
}

// Run drains the buffer until ctx is done, then flushes what is left. Emit
// reports a drop for anything arriving after that.
func (e *Emitter) Run(ctx context.Context) error {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req := <-e.ch:
					e.send(req)
				}
			}
		}()
	}
	e.wg.Wait()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.flush()
	return nil
}

func (e *Emitter) flush() {
	for {
		select {
		case req := <-e.ch:
			e.send(req)
		default:
			return
		}
	}
}

func (e *Emitter) send(req emitRequest) {
	ctx, cancel := context.WithTimeout(req.ctx, e.cfg.Timeout)
	defer cancel()
	id, err := e.q.Enqueue(ctx, req.name, req.payload)
	if err != nil {
		qerr := domainagg.NewError(domainagg.CodeUpstreamQueue, "queue.enqueue", req.name, err)
		e.metrics.IncJobEmitted(req.name, "failed")
		e.log.Error("job enqueue failed",
			append([]interface{}{"job", req.name, "backend", e.q.Backend(), "error", qerr}, ctxutil.TraceFields(req.ctx)...)...)
		return
	}
	e.metrics.IncJobEmitted(req.name, "enqueued")
	e.log.Debug("job enqueued",
		append([]interface{}{"job", req.name, "job_id", id, "backend", e.q.Backend()}, ctxutil.TraceFields(req.ctx)...)...)
}
