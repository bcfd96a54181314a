package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	wf "github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

// planTask builds a minimal task for orchestration tests.
func planTask(id string, deps ...string) wf.Task {
	return wf.Task{
		ID:           id,
		AgentType:    "echo",
		Instructions: "do " + id,
		DependsOn:    deps,
		Status:       wf.TaskPending,
	}
}

// TestOrchestrationWorkflow exercises wave execution with mocked
// activities.
func TestOrchestrationWorkflow(t *testing.T) {
	t.Run("completes a diamond plan wave by wave", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(OrchestrationWorkflow)

		var (
			mu    sync.Mutex
			order []string
		)
		var a *Activities
		env.OnActivity(a.ExecuteTask, mock.Anything, mock.Anything).Return(
			func(_ context.Context, input ExecuteTaskInput) (*ExecuteTaskResult, error) {
				mu.Lock()
				order = append(order, input.Task.ID)
				mu.Unlock()
				return &ExecuteTaskResult{
					Result:    "out:" + input.Task.ID,
					ResultKey: TaskResultKey(input.Task.ID),
				}, nil
			})
		env.OnActivity(a.RecordStatus, mock.Anything, mock.Anything).Return(nil)

		plan, err := wf.New("research and report", []wf.Task{
			planTask("fetch"),
			planTask("analyze", "fetch"),
			planTask("summarize", "fetch"),
			planTask("report", "analyze", "summarize"),
		})
		require.NoError(t, err)

		env.ExecuteWorkflow(OrchestrationWorkflow, OrchestrationInput{Workflow: *plan})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result OrchestrationResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, wf.StatusCompleted, result.Workflow.Status)
		assert.Empty(t, result.Workflow.Error)
		assert.Equal(t, 4, result.Progress.Completed)
		assert.Zero(t, result.Progress.Failed)
		require.NotNil(t, result.Workflow.StartedAt)
		require.NotNil(t, result.Workflow.CompletedAt)

		report, ok := result.Workflow.Task("report")
		require.True(t, ok)
		assert.Equal(t, wf.TaskCompleted, report.Status)
		assert.Equal(t, "out:report", report.Result)
		require.NotNil(t, report.StartedAt)
		require.NotNil(t, report.CompletedAt)

		// Dependencies gate the waves: fetch runs alone first, report
		// alone last, the middle two together in between.
		require.Len(t, order, 4)
		assert.Equal(t, "fetch", order[0])
		assert.Equal(t, "report", order[3])
		assert.ElementsMatch(t, []string{"analyze", "summarize"}, order[1:3])
	})

	t.Run("failed task strands dependents and fails the workflow", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(OrchestrationWorkflow)

		var (
			mu       sync.Mutex
			attempts = map[string]int{}
		)
		var a *Activities
		env.OnActivity(a.ExecuteTask, mock.Anything, mock.Anything).Return(
			func(_ context.Context, input ExecuteTaskInput) (*ExecuteTaskResult, error) {
				mu.Lock()
				attempts[input.Task.ID]++
				mu.Unlock()
				if input.Task.ID == "transform" {
					return nil, errors.New("agent exploded")
				}
				return &ExecuteTaskResult{Result: "ok"}, nil
			})
		env.OnActivity(a.RecordStatus, mock.Anything, mock.Anything).Return(nil)

		plan, err := wf.New("pipeline", []wf.Task{
			planTask("extract"),
			planTask("transform", "extract"),
			planTask("load", "transform"),
			planTask("audit"),
		})
		require.NoError(t, err)

		env.ExecuteWorkflow(OrchestrationWorkflow, OrchestrationInput{Workflow: *plan})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError(), "task failures surface in the result, not as a workflow error")

		var result OrchestrationResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, wf.StatusFailed, result.Workflow.Status)
		assert.Equal(t, "2 of 4 tasks did not complete", result.Workflow.Error)
		assert.Equal(t, 2, result.Progress.Completed)
		assert.Equal(t, 1, result.Progress.Failed)
		assert.Equal(t, 1, result.Progress.Pending)

		transform, ok := result.Workflow.Task("transform")
		require.True(t, ok)
		assert.Equal(t, wf.TaskFailed, transform.Status)
		assert.Contains(t, transform.Error, "agent exploded")

		load, ok := result.Workflow.Task("load")
		require.True(t, ok)
		assert.Equal(t, wf.TaskPending, load.Status, "dependent of the failed task never ran")

		audit, ok := result.Workflow.Task("audit")
		require.True(t, ok)
		assert.Equal(t, wf.TaskCompleted, audit.Status, "independent branch still ran")

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, attempts["transform"], "retry policy gives failing tasks three attempts")
		assert.Equal(t, 1, attempts["extract"])
	})

	t.Run("rejects an invalid plan before running anything", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(OrchestrationWorkflow)

		cyclic := wf.Workflow{
			ID:     "wf-cycle",
			Goal:   "impossible",
			Status: wf.StatusReady,
			Tasks: []wf.Task{
				planTask("a", "b"),
				planTask("b", "a"),
			},
		}
		env.ExecuteWorkflow(OrchestrationWorkflow, OrchestrationInput{Workflow: cyclic})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.ErrorContains(t, err, "dependency cycle")
	})

	t.Run("maintains the status record across waves", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(OrchestrationWorkflow)

		var (
			mu      sync.Mutex
			records []RecordStatusInput
		)
		var a *Activities
		env.OnActivity(a.ExecuteTask, mock.Anything, mock.Anything).Return(
			&ExecuteTaskResult{Result: "ok"}, nil)
		env.OnActivity(a.RecordStatus, mock.Anything, mock.Anything).Return(
			func(_ context.Context, input RecordStatusInput) error {
				mu.Lock()
				records = append(records, input)
				mu.Unlock()
				return nil
			})

		plan, err := wf.New("two step", []wf.Task{
			planTask("first"),
			planTask("second", "first"),
		})
		require.NoError(t, err)

		env.ExecuteWorkflow(OrchestrationWorkflow, OrchestrationInput{Workflow: *plan})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		// One record at start, one after each of the two waves, one
		// final.
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, records, 4)

		assert.Equal(t, plan.ID, records[0].WorkflowID)
		assert.Equal(t, "two step", records[0].Goal)
		assert.Equal(t, wf.StatusRunning, records[0].Status)
		assert.Equal(t, 2, records[0].Progress.Pending)

		assert.Equal(t, 1, records[1].Progress.Completed)
		assert.Equal(t, 2, records[2].Progress.Completed)

		final := records[3]
		assert.Equal(t, wf.StatusCompleted, final.Status)
		assert.Equal(t, 2, final.Progress.Completed)
		assert.Empty(t, final.Error)
		require.Len(t, final.Tasks, 2)
		assert.Equal(t, "first", final.Tasks[0].ID)
		assert.Equal(t, wf.TaskCompleted, final.Tasks[0].Status)
		assert.Equal(t, wf.TaskCompleted, final.Tasks[1].Status)
	})
}
