package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerMemoryTools()
	s.registerWorkspaceTools()
	s.registerWorkflowTools()
}

// ===== MEMORY TOOLS =====

type rememberInput struct {
	Key        string   `json:"key" jsonschema:"required,Memory key"`
	Content    string   `json:"content" jsonschema:"required,Content to remember"`
	Scope      string   `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
	Importance float64  `json:"importance,omitempty" jsonschema:"Importance weight 0-1 (default 0.5)"`
	MemoryType string   `json:"memory_type,omitempty" jsonschema:"Memory type (general fact insight observation)"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Tags for categorization"`
}

type rememberOutput struct {
	Key        string  `json:"key" jsonschema:"Stored key"`
	Scope      string  `json:"scope" jsonschema:"Scope the memory lives in"`
	MemoryType string  `json:"memory_type,omitempty" jsonschema:"Memory type when stored as rich content"`
	Importance float64 `json:"importance,omitempty" jsonschema:"Importance when stored as rich content"`
}

type recallInput struct {
	Key   string `json:"key" jsonschema:"required,Memory key"`
	Scope string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope); child scopes are searched too"`
}

type recallOutput struct {
	Key       string          `json:"key" jsonschema:"Memory key"`
	Scope     string          `json:"scope" jsonschema:"Scope the memory was found in"`
	Content   string          `json:"content,omitempty" jsonschema:"Text content when the value carries any"`
	Value     json.RawMessage `json:"value" jsonschema:"Raw stored value"`
	UpdatedAt time.Time       `json:"updated_at" jsonschema:"When the memory was last written"`
}

type forgetInput struct {
	Key   string `json:"key" jsonschema:"required,Memory key"`
	Scope string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
}

type forgetOutput struct {
	Key   string `json:"key" jsonschema:"Deleted key"`
	Scope string `json:"scope" jsonschema:"Scope the memory was deleted from"`
}

type listInput struct {
	Scope           string `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
	Pattern         string `json:"pattern,omitempty" jsonschema:"Glob pattern filtering keys (e.g. task:*)"`
	IncludeChildren bool   `json:"include_children,omitempty" jsonschema:"Also list keys from child scopes (default false)"`
}

type listOutput struct {
	Scope string   `json:"scope" jsonschema:"Scope that was listed"`
	Keys  []string `json:"keys" jsonschema:"Matching keys, sorted"`
	Count int      `json:"count" jsonschema:"Number of keys"`
}

type searchInput struct {
	Query    string  `json:"query" jsonschema:"required,Natural-language search query"`
	Scope    string  `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
	Limit    int     `json:"limit,omitempty" jsonschema:"Maximum results (default: 10)"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum similarity score 0-1 (default 0.7)"`
}

type searchHit struct {
	Key     string  `json:"key" jsonschema:"Memory key"`
	Scope   string  `json:"scope" jsonschema:"Scope holding the memory"`
	Content string  `json:"content" jsonschema:"Matching text"`
	Score   float64 `json:"score" jsonschema:"Similarity score, higher is better"`
}

type searchOutput struct {
	Results []searchHit `json:"results" jsonschema:"Matching memories, best first"`
	Count   int         `json:"count" jsonschema:"Number of results"`
	Query   string      `json:"query" jsonschema:"Original query"`
}

type rememberTypedInput struct {
	Key        string   `json:"key" jsonschema:"required,Memory key"`
	Content    string   `json:"content" jsonschema:"required,Content to remember"`
	Scope      string   `json:"scope,omitempty" jsonschema:"Scope to act as (default: server scope)"`
	Importance float64  `json:"importance,omitempty" jsonschema:"Importance weight 0-1 (default 0.5)"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Tags for categorization"`
}

func (s *Server) registerMemoryTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_remember",
		Description: "Store content under a key in scoped memory",
	}, s.remember)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_recall",
		Description: "Retrieve a memory by key, falling back to child scopes",
	}, s.recall)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_forget",
		Description: "Delete a memory by key",
	}, s.forget)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_list",
		Description: "List memory keys in a scope, optionally filtered by pattern",
	}, s.list)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search memories by meaning within a scope and its children",
	}, s.search)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remember_fact",
		Description: "Store a fact as rich content with importance and tags",
	}, s.rememberFact)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remember_insight",
		Description: "Store an insight as rich content with importance and tags",
	}, s.rememberInsight)
}

func (s *Server) remember(ctx context.Context, req *mcp.CallToolRequest, args rememberInput) (*mcp.CallToolResult, rememberOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "memory_remember")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "memory_remember")
		s.metrics.RecordInvocation(ctx, "memory_remember", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, rememberOutput{}, err
	}

	output := rememberOutput{Key: args.Key}
	var item *memory.Item
	if args.MemoryType != "" || args.Importance > 0 || len(args.Tags) > 0 {
		importance := args.Importance
		if importance == 0 {
			importance = memory.DefaultImportance
		}
		rich := memory.NewRichContent(args.Content, importance, args.MemoryType)
		if len(args.Tags) > 0 {
			rich = rich.WithTags(args.Tags...)
		}
		item, err = s.memory.StoreRich(actingCtx, args.Key, rich)
		output.MemoryType = rich.MemoryType
		output.Importance = rich.Importance
	} else {
		item, err = s.memory.StoreContent(actingCtx, args.Key, args.Content)
	}
	if err != nil {
		toolErr = fmt.Errorf("remember failed: %w", err)
		return nil, rememberOutput{}, toolErr
	}
	output.Scope = item.Scope.String()

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored %s in scope %s", item.Key, item.Scope)},
		},
	}, output, nil
}

func (s *Server) recall(ctx context.Context, req *mcp.CallToolRequest, args recallInput) (*mcp.CallToolResult, recallOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "memory_recall")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "memory_recall")
		s.metrics.RecordInvocation(ctx, "memory_recall", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, recallOutput{}, err
	}

	item, err := s.memory.Retrieve(actingCtx, args.Key)
	if err != nil {
		toolErr = fmt.Errorf("recall failed: %w", err)
		return nil, recallOutput{}, toolErr
	}

	output := recallOutput{
		Key:       item.Key,
		Scope:     item.Scope.String(),
		Content:   s.scrub(item.Text()),
		Value:     item.Value,
		UpdatedAt: item.UpdatedAt,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Recalled %s from scope %s", item.Key, item.Scope)},
		},
	}, output, nil
}

func (s *Server) forget(ctx context.Context, req *mcp.CallToolRequest, args forgetInput) (*mcp.CallToolResult, forgetOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "memory_forget")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "memory_forget")
		s.metrics.RecordInvocation(ctx, "memory_forget", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, forgetOutput{}, err
	}

	if err := s.memory.Delete(actingCtx, args.Key); err != nil {
		toolErr = fmt.Errorf("forget failed: %w", err)
		return nil, forgetOutput{}, toolErr
	}

	scopeName := s.defaultScope.String()
	if args.Scope != "" {
		scopeName = args.Scope
	}
	output := forgetOutput{Key: args.Key, Scope: scopeName}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Forgot %s in scope %s", args.Key, scopeName)},
		},
	}, output, nil
}

func (s *Server) list(ctx context.Context, req *mcp.CallToolRequest, args listInput) (*mcp.CallToolResult, listOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "memory_list")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "memory_list")
		s.metrics.RecordInvocation(ctx, "memory_list", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, listOutput{}, err
	}

	opts := make([]memory.Option, 0, 2)
	if args.Pattern != "" {
		opts = append(opts, memory.MatchPattern(args.Pattern))
	}
	if !args.IncludeChildren {
		opts = append(opts, memory.WithoutChildScopes())
	}

	keys, err := s.memory.ListKeys(actingCtx, opts...)
	if err != nil {
		toolErr = fmt.Errorf("list failed: %w", err)
		return nil, listOutput{}, toolErr
	}

	scopeName := s.defaultScope.String()
	if args.Scope != "" {
		scopeName = args.Scope
	}
	output := listOutput{Scope: scopeName, Keys: keys, Count: len(keys)}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d keys in scope %s", output.Count, scopeName)},
		},
	}, output, nil
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "memory_search")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "memory_search")
		s.metrics.RecordInvocation(ctx, "memory_search", time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, searchOutput{}, err
	}

	opts := make([]memory.Option, 0, 2)
	if args.Limit > 0 {
		opts = append(opts, memory.WithLimit(args.Limit))
	}
	if args.MinScore > 0 {
		opts = append(opts, memory.WithMinScore(args.MinScore))
	}

	hits, err := s.memory.Search(actingCtx, args.Query, opts...)
	if err != nil {
		toolErr = fmt.Errorf("search failed: %w", err)
		return nil, searchOutput{}, toolErr
	}

	results := make([]searchHit, 0, len(hits))
	for _, hit := range hits {
		results = append(results, searchHit{
			Key:     hit.Key,
			Scope:   hit.Scope.String(),
			Content: s.scrub(hit.Content),
			Score:   hit.Score,
		})
	}

	output := searchOutput{Results: results, Count: len(results), Query: args.Query}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d memories for query: %s", output.Count, args.Query)},
		},
	}, output, nil
}

func (s *Server) rememberFact(ctx context.Context, req *mcp.CallToolRequest, args rememberTypedInput) (*mcp.CallToolResult, rememberOutput, error) {
	return s.rememberTyped(ctx, "remember_fact", memory.TypeFact, args)
}

func (s *Server) rememberInsight(ctx context.Context, req *mcp.CallToolRequest, args rememberTypedInput) (*mcp.CallToolResult, rememberOutput, error) {
	return s.rememberTyped(ctx, "remember_insight", memory.TypeInsight, args)
}

// rememberTyped stores rich content with a fixed memory type. remember_fact and
// remember_insight share it; only the type differs.
func (s *Server) rememberTyped(ctx context.Context, tool, memoryType string, args rememberTypedInput) (*mcp.CallToolResult, rememberOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), toolErr)
	}()

	actingCtx, err := s.actingContext(ctx, args.Scope)
	if err != nil {
		toolErr = err
		return nil, rememberOutput{}, err
	}

	importance := args.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	rich := memory.NewRichContent(args.Content, importance, memoryType)
	if len(args.Tags) > 0 {
		rich = rich.WithTags(args.Tags...)
	}

	item, err := s.memory.StoreRich(actingCtx, args.Key, rich)
	if err != nil {
		toolErr = fmt.Errorf("%s failed: %w", tool, err)
		return nil, rememberOutput{}, toolErr
	}

	output := rememberOutput{
		Key:        item.Key,
		Scope:      item.Scope.String(),
		MemoryType: rich.MemoryType,
		Importance: rich.Importance,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored %s %s in scope %s", memoryType, item.Key, item.Scope)},
		},
	}, output, nil
}
