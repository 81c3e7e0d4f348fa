package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// WorkflowName is the Temporal workflow type that runs one queued job.
const WorkflowName = "KeyResultJobWorkflow"

// TemporalQueue starts one workflow per job. Retries and backoff are owned
// by the workflow's activity retry policy, so it is not a Source.
type TemporalQueue struct {
	client      temporalsdkclient.Client
	taskQueue   string
	maxAttempts int
}

func NewTemporalQueue(c temporalsdkclient.Client, taskQueue string, maxAttempts int) *TemporalQueue {
	taskQueue = strings.TrimSpace(taskQueue)
	if taskQueue == "" {
		taskQueue = "keyresult-tracker"
	}
	return &TemporalQueue{client: c, taskQueue: taskQueue, maxAttempts: maxAttempts}
}

func (q *TemporalQueue) Backend() string { return BackendTemporal }

func (q *TemporalQueue) TaskQueue() string { return q.taskQueue }

func (q *TemporalQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	if q == nil || q.client == nil {
		return "", fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	job, err := newJob(ctx, uuid.NewString(), name, payload, q.maxAttempts)
	if err != nil {
		return "", err
	}
	_, err = q.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    name + ":" + job.ID,
		TaskQueue:             q.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, WorkflowName, *job)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return job.ID, nil
		}
		return "", fmt.Errorf("start temporal workflow: %w", err)
	}
	return job.ID, nil
}
