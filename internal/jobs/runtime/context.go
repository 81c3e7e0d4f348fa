package runtime

import (
	"context"

	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

/*
Context is the execution handle for one claimed job.
	- Ctx carries the job's trace data so handler logs line up with the request
	  that emitted the job.
	- Log is scoped to the job name and id.
Handlers report failure by returning an error; the caller decides between
retry and dead-lettering.
*/
type Context struct {
	Ctx context.Context
	Job *queue.Job
	Log *logger.Logger
}

func NewContext(ctx context.Context, job *queue.Job, baseLog *logger.Logger) *Context {
	if job.TraceID != "" || job.RequestID != "" {
		ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{TraceID: job.TraceID, RequestID: job.RequestID})
	}
	log := baseLog.With("job", job.Name, "job_id", job.ID, "attempt", job.Attempts)
	if fields := ctxutil.TraceFields(ctx); len(fields) > 0 {
		log = log.With(fields...)
	}
	return &Context{Ctx: ctx, Job: job, Log: log}
}

func (c *Context) Decode(v any) error {
	return c.Job.Decode(v)
}
