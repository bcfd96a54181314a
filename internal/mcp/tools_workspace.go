package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ===== WORKSPACE TOOLS =====
//
// Workspaces are shared scratchpads. Access is by possession of the
// workspace ID, so every tool takes the ID explicitly; the caller's
// scope is only recorded as the author of writes.

type workspaceCreateInput struct {
	Name  string `json:"name,omitempty" jsonschema:"Human-readable workspace label"`
	Scope string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type workspaceCreateOutput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"Generated workspace ID; share it to grant access"`
	Name        string `json:"name,omitempty" jsonschema:"Workspace label"`
	CreatedBy   string `json:"created_by" jsonschema:"Scope that created the workspace"`
}

type workspaceWriteInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required,Workspace ID"`
	Key         string `json:"key" jsonschema:"required,Entry key"`
	Content     string `json:"content" jsonschema:"required,Content to write"`
	Scope       string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type workspaceWriteOutput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"Workspace ID"`
	Key         string `json:"key" jsonschema:"Written key"`
}

type workspaceReadInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required,Workspace ID"`
	Key         string `json:"key" jsonschema:"required,Entry key"`
	Scope       string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type workspaceReadOutput struct {
	WorkspaceID string    `json:"workspace_id" jsonschema:"Workspace ID"`
	Key         string    `json:"key" jsonschema:"Entry key"`
	Content     string    `json:"content" jsonschema:"Entry content"`
	CreatedBy   string    `json:"created_by" jsonschema:"Scope that wrote the entry"`
	CreatedAt   time.Time `json:"created_at" jsonschema:"When the entry was written"`
}

type workspaceListInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required,Workspace ID"`
	Scope       string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type workspaceListOutput struct {
	WorkspaceID string   `json:"workspace_id" jsonschema:"Workspace ID"`
	Keys        []string `json:"keys" jsonschema:"Entry keys, sorted"`
	Count       int      `json:"count" jsonschema:"Number of entries"`
}

type workspaceSearchInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required,Workspace ID"`
	Query       string `json:"query" jsonschema:"required,Natural-language search query"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 5)"`
	Scope       string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type workspaceHit struct {
	Key       string    `json:"key" jsonschema:"Entry key"`
	Content   string    `json:"content" jsonschema:"Matching text"`
	Score     float64   `json:"score" jsonschema:"Similarity score, higher is better"`
	CreatedBy string    `json:"created_by,omitempty" jsonschema:"Scope that wrote the entry"`
	CreatedAt time.Time `json:"created_at,omitempty" jsonschema:"When the entry was written"`
}

type workspaceSearchOutput struct {
	WorkspaceID string         `json:"workspace_id" jsonschema:"Workspace ID"`
	Results     []workspaceHit `json:"results" jsonschema:"Matching entries, best first"`
	Count       int            `json:"count" jsonschema:"Number of results"`
}

func (s *Server) registerWorkspaceTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_create",
		Description: "Create a shared workspace and return its ID",
	}, s.workspaceCreate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_write",
		Description: "Write an entry into a shared workspace",
	}, s.workspaceWrite)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_read",
		Description: "Read an entry from a shared workspace",
	}, s.workspaceRead)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_list",
		Description: "List entry keys in a shared workspace",
	}, s.workspaceList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_search",
		Description: "Search entries in a shared workspace by meaning",
	}, s.workspaceSearch)
}

func (s *Server) workspaceCreate(ctx context.Context, req *mcp.CallToolRequest, args workspaceCreateInput) (*mcp.CallToolResult, workspaceCreateOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workspace_create")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workspace_create")
		s.metrics.RecordInvocation(ctx, "workspace_create", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, workspaceCreateOutput{}, err
	}

	ws, err := s.workspaces.Create(actingCtx, args.Name)
	if err != nil {
		toolErr = fmt.Errorf("workspace create failed: %w", err)
		return nil, workspaceCreateOutput{}, toolErr
	}

	output := workspaceCreateOutput{
		WorkspaceID: ws.ID,
		Name:        ws.Name,
		CreatedBy:   ws.CreatedBy.String(),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Created workspace %s", ws.ID)},
		},
	}, output, nil
}

func (s *Server) workspaceWrite(ctx context.Context, req *mcp.CallToolRequest, args workspaceWriteInput) (*mcp.CallToolResult, workspaceWriteOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workspace_write")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workspace_write")
		s.metrics.RecordInvocation(ctx, "workspace_write", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, workspaceWriteOutput{}, err
	}

	if _, err := s.workspaces.Write(actingCtx, args.WorkspaceID, args.Key, args.Content); err != nil {
		toolErr = fmt.Errorf("workspace write failed: %w", err)
		return nil, workspaceWriteOutput{}, toolErr
	}

	output := workspaceWriteOutput{WorkspaceID: args.WorkspaceID, Key: args.Key}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Wrote %s to workspace %s", args.Key, args.WorkspaceID)},
		},
	}, output, nil
}

func (s *Server) workspaceRead(ctx context.Context, req *mcp.CallToolRequest, args workspaceReadInput) (*mcp.CallToolResult, workspaceReadOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workspace_read")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workspace_read")
		s.metrics.RecordInvocation(ctx, "workspace_read", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, workspaceReadOutput{}, err
	}

	entry, err := s.workspaces.Read(actingCtx, args.WorkspaceID, args.Key)
	if err != nil {
		toolErr = fmt.Errorf("workspace read failed: %w", err)
		return nil, workspaceReadOutput{}, toolErr
	}

	// Entries hold arbitrary JSON. Plain strings come back as their text;
	// anything else is returned as compact JSON.
	var text string
	if err := json.Unmarshal(entry.Content, &text); err != nil {
		text = string(entry.Content)
	}

	output := workspaceReadOutput{
		WorkspaceID: args.WorkspaceID,
		Key:         args.Key,
		Content:     s.scrub(text),
		CreatedBy:   entry.CreatedBy.String(),
		CreatedAt:   entry.CreatedAt,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Read %s from workspace %s", args.Key, args.WorkspaceID)},
		},
	}, output, nil
}

func (s *Server) workspaceList(ctx context.Context, req *mcp.CallToolRequest, args workspaceListInput) (*mcp.CallToolResult, workspaceListOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workspace_list")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workspace_list")
		s.metrics.RecordInvocation(ctx, "workspace_list", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, workspaceListOutput{}, err
	}

	keys, err := s.workspaces.Keys(actingCtx, args.WorkspaceID)
	if err != nil {
		toolErr = fmt.Errorf("workspace list failed: %w", err)
		return nil, workspaceListOutput{}, toolErr
	}

	output := workspaceListOutput{WorkspaceID: args.WorkspaceID, Keys: keys, Count: len(keys)}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d entries in workspace %s", output.Count, args.WorkspaceID)},
		},
	}, output, nil
}

func (s *Server) workspaceSearch(ctx context.Context, req *mcp.CallToolRequest, args workspaceSearchInput) (*mcp.CallToolResult, workspaceSearchOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workspace_search")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workspace_search")
		s.metrics.RecordInvocation(ctx, "workspace_search", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, workspaceSearchOutput{}, err
	}

	hits, err := s.workspaces.Search(actingCtx, args.WorkspaceID, args.Query, args.Limit)
	if err != nil {
		toolErr = fmt.Errorf("workspace search failed: %w", err)
		return nil, workspaceSearchOutput{}, toolErr
	}

	results := make([]workspaceHit, 0, len(hits))
	for _, hit := range hits {
		results = append(results, workspaceHit{
			Key:       hit.Key,
			Content:   s.scrub(hit.Content),
			Score:     hit.Score,
			CreatedBy: hit.CreatedBy.String(),
			CreatedAt: hit.CreatedAt,
		})
	}

	output := workspaceSearchOutput{
		WorkspaceID: args.WorkspaceID,
		Results:     results,
		Count:       len(results),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d entries for query: %s", output.Count, args.Query)},
		},
	}, output, nil
}
