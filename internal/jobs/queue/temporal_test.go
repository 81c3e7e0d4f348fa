package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// spyTemporalClient records workflow starts; every other client method is
// left to the nil embedded interface.
type spyTemporalClient struct {
	temporalsdkclient.Client

	err     error
	options []temporalsdkclient.StartWorkflowOptions
	jobs    []Job
}

func (c *spyTemporalClient) ExecuteWorkflow(_ context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	if workflow != WorkflowName {
		return nil, errors.New("unexpected workflow type")
	}
	c.options = append(c.options, options)
	if len(args) == 1 {
		if job, ok := args[0].(Job); ok {
			c.jobs = append(c.jobs, job)
		}
	}
	return nil, c.err
}

func TestTemporalQueueStartsOneWorkflowPerJob(t *testing.T) {
	c := &spyTemporalClient{}
	q := NewTemporalQueue(c, "  ", 4)
	if q.TaskQueue() != "keyresult-tracker" {
		t.Fatalf("default task queue: %q", q.TaskQueue())
	}

	id, err := q.Enqueue(context.Background(), "key_result.calculate_trends", map[string]int{"version": 2})
	if err != nil || id == "" {
		t.Fatalf("Enqueue: id=%q err=%v", id, err)
	}
	if len(c.options) != 1 || len(c.jobs) != 1 {
		t.Fatalf("want one workflow start, got %d", len(c.options))
	}
	opts := c.options[0]
	if opts.ID != "key_result.calculate_trends:"+id || opts.TaskQueue != "keyresult-tracker" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.WorkflowIDReusePolicy != enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE {
		t.Fatalf("reuse policy: %v", opts.WorkflowIDReusePolicy)
	}
	job := c.jobs[0]
	if job.ID != id || job.MaxAttempts != 4 || !strings.Contains(string(job.Payload), `"version":2`) {
		t.Fatalf("unexpected job arg: %+v", job)
	}
}

func TestTemporalQueueTreatsDuplicateStartAsEnqueued(t *testing.T) {
	c := &spyTemporalClient{err: serviceerror.NewWorkflowExecutionAlreadyStarted("started", "req", "run")}
	q := NewTemporalQueue(c, "krt", 3)
	id, err := q.Enqueue(context.Background(), "key_result.calculate_trends", nil)
	if err != nil || id == "" {
		t.Fatalf("duplicate start should not fail: id=%q err=%v", id, err)
	}
}

func TestTemporalQueueSurfacesStartFailure(t *testing.T) {
	c := &spyTemporalClient{err: errors.New("frontend unavailable")}
	q := NewTemporalQueue(c, "krt", 3)
	if _, err := q.Enqueue(context.Background(), "key_result.calculate_trends", nil); err == nil {
		t.Fatalf("want start error")
	}
	var nilQueue *TemporalQueue
	if _, err := nilQueue.Enqueue(context.Background(), "x", nil); err == nil {
		t.Fatalf("unconfigured queue should error")
	}
}
