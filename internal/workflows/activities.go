package workflows

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/agent"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	wf "github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

// ResultStore is the slice of the memory service the activities need.
type ResultStore interface {
	Store(ctx context.Context, key string, value any, opts ...memory.Option) (*memory.Item, error)
}

var _ ResultStore = (*memory.Service)(nil)

// Activities holds the worker-side dependencies of the orchestration
// workflow. Temporal serializes activity inputs, not receivers, so the
// memory store and agent registry live here.
type Activities struct {
	store  ResultStore
	agents *agent.Registry
	logger *zap.Logger
}

// NewActivities wires the orchestration activities.
func NewActivities(store ResultStore, agents *agent.Registry, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{store: store, agents: agents, logger: logger}
}

// ExecuteTaskInput identifies one task of one workflow run.
type ExecuteTaskInput struct {
	WorkflowID string
	Task       wf.Task
}

// ExecuteTaskResult carries the agent's output and where it was stored.
type ExecuteTaskResult struct {
	Result    string
	ResultKey string
}

// ExecuteTask runs one task through its agent and stores the result in
// the workflow's memory scope under TaskResultKey.
func (a *Activities) ExecuteTask(ctx context.Context, input ExecuteTaskInput) (*ExecuteTaskResult, error) {
	task := input.Task

	actx := agent.Context{
		AgentID:    task.AgentType,
		WorkflowID: input.WorkflowID,
		Scope:      scope.ForAgent(input.WorkflowID, task.AgentType),
		Metadata:   task.Metadata,
	}
	runner, err := a.agents.Create(ctx, task.AgentType, actx)
	if err != nil {
		return nil, err
	}

	// Agents act as the workflow scope: results and any notes they take
	// land under workflow:<id>, visible to the next wave's agents. The
	// narrower agent scope from the context is theirs to write via
	// InScope.
	ctx = scope.WithScope(ctx, scope.ForWorkflow(input.WorkflowID))

	a.logger.Debug("executing task",
		zap.String("workflow_id", input.WorkflowID),
		zap.String("task_id", task.ID),
		zap.String("agent_type", task.AgentType))

	result, err := runner.Run(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("agent %s on task %s: %w", task.AgentType, task.ID, err)
	}

	key := TaskResultKey(task.ID)
	if _, err := a.store.Store(ctx, key, result); err != nil {
		return nil, fmt.Errorf("storing result for task %s: %w", task.ID, err)
	}

	a.logger.Info("task executed",
		zap.String("workflow_id", input.WorkflowID),
		zap.String("task_id", task.ID),
		zap.String("result_key", key))

	return &ExecuteTaskResult{Result: result, ResultKey: key}, nil
}

// RecordStatusInput is the workflow state snapshot to persist.
type RecordStatusInput struct {
	WorkflowID string
	Goal       string
	Status     wf.Status
	Error      string
	Progress   wf.Progress
	Tasks      []TaskState
}

// TaskState is the per-task slice of a status record: lifecycle fields
// only, without instructions or results. Results live under their own
// keys.
type TaskState struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	AgentType   string        `json:"agent_type"`
	Status      wf.TaskStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// taskStates trims a plan's tasks down to their lifecycle state.
func taskStates(tasks []wf.Task) []TaskState {
	states := make([]TaskState, len(tasks))
	for i, t := range tasks {
		states[i] = TaskState{
			ID:          t.ID,
			Name:        t.Name,
			AgentType:   t.AgentType,
			Status:      t.Status,
			Error:       t.Error,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		}
	}
	return states
}

// StatusRecord is the document kept at StatusKey in the workflow scope.
type StatusRecord struct {
	WorkflowID string      `json:"workflow_id"`
	Goal       string      `json:"goal"`
	Status     wf.Status   `json:"status"`
	Error      string      `json:"error,omitempty"`
	Progress   wf.Progress `json:"progress"`
	Tasks      []TaskState `json:"tasks,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// RecordStatus upserts the workflow's status record at StatusKey.
func (a *Activities) RecordStatus(ctx context.Context, input RecordStatusInput) error {
	ctx = scope.WithScope(ctx, scope.ForWorkflow(input.WorkflowID))

	record := StatusRecord{
		WorkflowID: input.WorkflowID,
		Goal:       input.Goal,
		Status:     input.Status,
		Error:      input.Error,
		Progress:   input.Progress,
		Tasks:      input.Tasks,
		UpdatedAt:  time.Now().UTC(),
	}
	if _, err := a.store.Store(ctx, StatusKey, record); err != nil {
		return fmt.Errorf("recording status for workflow %s: %w", input.WorkflowID, err)
	}
	return nil
}
