package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/memoryd/internal/workflows"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	wf "github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

// ===== WORKFLOW TOOLS =====

type workflowStatusInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow ID returned when the workflow started"`
}

type workflowStatusOutput struct {
	WorkflowID string                `json:"workflow_id" jsonschema:"Workflow ID"`
	Goal       string                `json:"goal" jsonschema:"Goal the workflow is pursuing"`
	Status     wf.Status             `json:"status" jsonschema:"Workflow status (pending running completed failed)"`
	Error      string                `json:"error,omitempty" jsonschema:"Failure detail when the workflow failed"`
	Progress   wf.Progress           `json:"progress" jsonschema:"Task counts by state"`
	Tasks      []workflows.TaskState `json:"tasks,omitempty" jsonschema:"Per-task lifecycle states"`
	UpdatedAt  time.Time             `json:"updated_at" jsonschema:"When the status was last recorded"`
}

func (s *Server) registerWorkflowTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_status",
		Description: "Read the status record of an orchestration workflow by ID",
	}, s.workflowStatus)
}

// workflowStatus reads the status record the orchestrator maintains in the
// workflow's own scope. Like workspaces, possession of the workflow ID is
// what grants access, so the tool acts as the workflow scope rather than
// the caller's scope.
func (s *Server) workflowStatus(ctx context.Context, req *mcp.CallToolRequest, args workflowStatusInput) (*mcp.CallToolResult, workflowStatusOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workflow_status")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workflow_status")
		s.metrics.RecordInvocation(ctx, "workflow_status", time.Since(start), toolErr)
	}()

	if args.WorkflowID == "" {
		toolErr = fmt.Errorf("workflow_id is required")
		return nil, workflowStatusOutput{}, toolErr
	}

	actingCtx := scope.WithScope(ctx, scope.ForWorkflow(args.WorkflowID))

	item, err := s.memory.Retrieve(actingCtx, workflows.StatusKey, memory.WithoutChildFallback())
	if err != nil {
		toolErr = fmt.Errorf("workflow status failed: %w", err)
		return nil, workflowStatusOutput{}, toolErr
	}

	var record workflows.StatusRecord
	if err := item.Decode(&record); err != nil {
		toolErr = fmt.Errorf("workflow status failed: decode record: %w", err)
		return nil, workflowStatusOutput{}, toolErr
	}

	output := workflowStatusOutput{
		WorkflowID: record.WorkflowID,
		Goal:       s.scrub(record.Goal),
		Status:     record.Status,
		Error:      s.scrub(record.Error),
		Progress:   record.Progress,
		Tasks:      record.Tasks,
		UpdatedAt:  record.UpdatedAt,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Workflow %s is %s (%d/%d tasks completed)",
				record.WorkflowID, record.Status, record.Progress.Completed, record.Progress.Total)},
		},
	}, output, nil
}
