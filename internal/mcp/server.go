package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/secrets"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/workspace"
)

// Server exposes the memory and workspace services as MCP tools.
type Server struct {
	mcp          *mcp.Server
	memory       *memory.Service
	workspaces   *workspace.Service
	scrubber     *secrets.Scrubber
	defaultScope scope.Scope
	metrics      *Metrics
	logger       *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "memoryd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// DefaultScope is the scope tool calls act as when they pass none.
	// Default: "global".
	DefaultScope string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "memoryd",
		Version:      "dev",
		DefaultScope: scope.Global.String(),
		Logger:       zap.NewNop(),
	}
}

// NewServer creates an MCP server over the given services.
//
// The scrubber is applied to all textual tool output; pass a disabled
// scrubber rather than nil to turn scrubbing off.
func NewServer(cfg *Config, mem *memory.Service, workspaces *workspace.Service, scrubber *secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if mem == nil {
		return nil, fmt.Errorf("memory service is required")
	}
	if workspaces == nil {
		return nil, fmt.Errorf("workspace service is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defaultScope := scope.Global
	if cfg.DefaultScope != "" {
		parsed, err := scope.Parse(cfg.DefaultScope)
		if err != nil {
			return nil, fmt.Errorf("invalid default scope: %w", err)
		}
		defaultScope = parsed
	}

	name := cfg.Name
	if name == "" {
		name = "memoryd"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    name,
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		memory:       mem,
		workspaces:   workspaces,
		scrubber:     scrubber,
		defaultScope: defaultScope,
		metrics:      NewMetrics(logger),
		logger:       logger,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport",
		zap.String("default_scope", s.defaultScope.String()))
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// actingContext resolves the scope a tool call acts as and injects it
// into the context as the requester.
func (s *Server) actingContext(ctx context.Context, scopeArg string) (context.Context, error) {
	acting := s.defaultScope
	if scopeArg != "" {
		parsed, err := scope.Parse(scopeArg)
		if err != nil {
			return nil, err
		}
		acting = parsed
	}
	return scope.WithScope(ctx, acting), nil
}

// scrub removes secrets from tool output text.
func (s *Server) scrub(text string) string {
	return s.scrubber.ScrubText(text)
}
