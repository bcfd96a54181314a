// Package agent defines the runner abstraction workflows execute tasks
// through, and a registry mapping agent types to runner factories.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

// ErrUnknownAgentType is returned when no factory is registered for a
// requested agent type.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Context carries the identity a runner executes under: which agent it
// is, which workflow invoked it, and the memory scope set aside for it.
type Context struct {
	AgentID    string            `json:"agent_id"`
	WorkflowID string            `json:"workflow_id"`
	Scope      scope.Scope       `json:"scope"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Runner executes a single task and returns its textual result.
type Runner interface {
	Run(ctx context.Context, task workflow.Task) (string, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, task workflow.Task) (string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, task workflow.Task) (string, error) {
	return f(ctx, task)
}

// Factory builds a runner for one agent instantiation.
type Factory func(ctx context.Context, actx Context) (Runner, error)

// Registry maps agent types to runner factories. It is safe for
// concurrent use: workers register factories at startup and activities
// create runners per task.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for the agent type, replacing any
// previous registration. Registering a nil factory panics: registration
// happens at worker startup, where a nil factory is a programming
// error.
func (r *Registry) Register(agentType string, factory Factory) {
	if factory == nil {
		panic("agent: nil factory for type " + agentType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[agentType] = factory
}

// Create builds a runner of the given type for one task execution.
// Returns ErrUnknownAgentType when no factory is registered.
func (r *Registry) Create(ctx context.Context, agentType string, actx Context) (Runner, error) {
	r.mu.RLock()
	factory, ok := r.factories[agentType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, agentType)
	}

	runner, err := factory(ctx, actx)
	if err != nil {
		return nil, fmt.Errorf("creating %s agent: %w", agentType, err)
	}
	return runner, nil
}

// Has reports whether a factory is registered for the agent type.
func (r *Registry) Has(agentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[agentType]
	return ok
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
