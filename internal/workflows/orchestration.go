// Package workflows provides Temporal workflow definitions for memoryd
// agent orchestration.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	wf "github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

// TaskQueue is the Temporal task queue memoryd workers listen on.
const TaskQueue = "memoryd-workflows"

// StatusKey is the memory key the orchestrator keeps the workflow
// status record under, inside the workflow's scope.
const StatusKey = "workflow:status"

// TaskResultKey returns the memory key a task's result is stored under
// in the workflow's scope.
func TaskResultKey(taskID string) string {
	return fmt.Sprintf("task:%s:result", taskID)
}

// OrchestrationInput starts an agent workflow run.
type OrchestrationInput struct {
	Workflow wf.Workflow
}

// OrchestrationResult is the executed plan plus its final task counts.
type OrchestrationResult struct {
	Workflow wf.Workflow
	Progress wf.Progress
}

// OrchestrationWorkflow executes a task plan in dependency waves.
//
// Each wave runs every currently executable task as an ExecuteTask
// activity in parallel, then collects results in plan order. Results
// land in scoped memory under the workflow's scope, and a status record
// is maintained at StatusKey after every wave. A failed task does not
// stop independent branches; the workflow fails once no further tasks
// can run and some did not complete.
func OrchestrationWorkflow(ctx workflow.Context, input OrchestrationInput) (*OrchestrationResult, error) {
	logger := workflow.GetLogger(ctx)

	plan := input.Workflow
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	logger.Info("Starting workflow orchestration",
		"workflow_id", plan.ID,
		"goal", plan.Goal,
		"tasks", len(plan.Tasks))

	// Configure activity options
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	started := workflow.Now(ctx).UTC()
	plan.Status = wf.StatusRunning
	plan.StartedAt = &started

	// Status records are observability, not the source of truth; a
	// failed write is logged and the run continues.
	recordStatus := func() {
		err := workflow.ExecuteActivity(ctx, a.RecordStatus, RecordStatusInput{
			WorkflowID: plan.ID,
			Goal:       plan.Goal,
			Status:     plan.Status,
			Error:      plan.Error,
			Progress:   plan.Progress(),
			Tasks:      taskStates(plan.Tasks),
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("Failed to record workflow status", "workflow_id", plan.ID, "error", err)
		}
	}
	recordStatus()

	for {
		wave := plan.ExecutableTasks()
		if len(wave) == 0 {
			break
		}
		logger.Info("Executing wave", "workflow_id", plan.ID, "tasks", len(wave))

		// Launch the whole wave, then collect in plan order.
		type execution struct {
			taskID string
			future workflow.Future
		}
		executions := make([]execution, 0, len(wave))
		for _, task := range wave {
			task.Start(workflow.Now(ctx).UTC())
			executions = append(executions, execution{
				taskID: task.ID,
				future: workflow.ExecuteActivity(ctx, a.ExecuteTask, ExecuteTaskInput{
					WorkflowID: plan.ID,
					Task:       *task,
				}),
			})
		}

		for _, ex := range executions {
			task, ok := plan.Task(ex.taskID)
			if !ok {
				continue
			}
			var out ExecuteTaskResult
			if err := ex.future.Get(ctx, &out); err != nil {
				logger.Error("Task failed",
					"workflow_id", plan.ID,
					"task_id", ex.taskID,
					"error", err)
				task.Fail(err.Error(), workflow.Now(ctx).UTC())
				continue
			}
			task.Complete(out.Result, workflow.Now(ctx).UTC())
			logger.Info("Task completed", "workflow_id", plan.ID, "task_id", ex.taskID)
		}

		recordStatus()
	}

	completed := workflow.Now(ctx).UTC()
	plan.CompletedAt = &completed

	progress := plan.Progress()
	if plan.AllCompleted() {
		plan.Status = wf.StatusCompleted
	} else {
		plan.Status = wf.StatusFailed
		plan.Error = fmt.Sprintf("%d of %d tasks did not complete",
			progress.Total-progress.Completed, progress.Total)
	}
	recordStatus()

	logger.Info("Workflow orchestration complete",
		"workflow_id", plan.ID,
		"status", string(plan.Status),
		"completed", progress.Completed,
		"failed", progress.Failed)

	return &OrchestrationResult{Workflow: plan, Progress: progress}, nil
}
