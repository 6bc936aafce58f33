package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/moduleforge/builder/internal/builderrors"
	"github.com/moduleforge/builder/internal/idtypes"
)

// Intake submits BuildJobs as Temporal workflow executions and answers
// status queries, grounded on agents/manager/cmd/manager/beams.go's
// maybeStartBeamWorkflow/StartWorkflowOptions pattern.
type Intake struct {
	temporal  client.Client
	taskQueue string
	maxQueued int
	pending   int
}

// NewIntake constructs an Intake bound to a Temporal client and task queue.
// maxQueued bounds the number of BuildJobs this process will accept before
// returning KindQueueFull, per spec §6.2's bounded-intake requirement.
func NewIntake(temporal client.Client, taskQueue string, maxQueued int) *Intake {
	return &Intake{temporal: temporal, taskQueue: taskQueue, maxQueued: maxQueued}
}

// workflowID derives a deterministic Temporal Workflow ID from the job's
// idempotency key so resubmitting the same intake request is a no-op
// against an in-flight or completed execution.
func workflowID(idempotencyKey string) string {
	return "build-" + idempotencyKey
}

// SubmitResult is returned from Submit: either a freshly started job or the
// JobID of an already-running/completed execution sharing the idempotency
// key.
type SubmitResult struct {
	JobID    idtypes.JobID
	Deduped  bool
}

// Submit starts a BuildWorkflow for req, rejecting duplicate submissions
// under the same idempotency key via
// WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE — a second Submit with the same
// key while the first workflow is still running or has already completed
// returns Deduped=true rather than starting a second job.
func (in *Intake) Submit(ctx context.Context, idempotencyKey string, req BuildWorkflowRequest) (SubmitResult, error) {
	if in.maxQueued > 0 && in.pending >= in.maxQueued {
		return SubmitResult{}, builderrors.New(builderrors.KindQueueFull,
			fmt.Sprintf("intake queue full: %d pending", in.pending))
	}

	opts := client.StartWorkflowOptions{
		ID:                    workflowID(idempotencyKey),
		TaskQueue:             in.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	in.pending++
	_, err := in.temporal.ExecuteWorkflow(ctx, opts, BuildWorkflow, req)
	if err != nil {
		in.pending--
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return SubmitResult{JobID: req.Job.JobID, Deduped: true}, nil
		}
		return SubmitResult{}, builderrors.Wrap(builderrors.KindInternal, "start build workflow", err)
	}
	return SubmitResult{JobID: req.Job.JobID}, nil
}

// StatusResult is the terminal or in-progress view of a submitted job,
// derived from the workflow's current stage and (if finished) its result.
type StatusResult struct {
	JobID      idtypes.JobID
	Stage      Stage
	Running    bool
	AttestedID string
}

// Status queries the workflow execution started for idempotencyKey and
// reports its current disposition. If the workflow has completed, its
// BuildWorkflowResult is consulted for the final stage and attestation id.
func (in *Intake) Status(ctx context.Context, idempotencyKey string) (StatusResult, error) {
	id := workflowID(idempotencyKey)
	desc, err := in.temporal.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		return StatusResult{}, builderrors.Wrap(builderrors.KindNotFound, "describe build workflow", err)
	}
	status := desc.GetWorkflowExecutionInfo().GetStatus()
	if status == enums.WORKFLOW_EXECUTION_STATUS_RUNNING {
		return StatusResult{Running: true}, nil
	}

	var result BuildWorkflowResult
	run := in.temporal.GetWorkflow(ctx, id, "")
	if err := run.Get(ctx, &result); err != nil {
		return StatusResult{}, builderrors.Wrap(builderrors.KindInternal, "fetch build workflow result", err)
	}
	return StatusResult{Stage: result.FinalStage, AttestedID: result.AttestedID}, nil
}
