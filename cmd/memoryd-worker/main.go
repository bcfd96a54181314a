// Package main provides the Temporal worker for memoryd orchestration
// workflows.
//
// The worker polls the orchestration task queue, runs task plans wave by
// wave through the registered agents, and records task results and
// workflow status into scoped memory.
//
// Usage:
//
//	MEMORYD_WORKFLOW_HOST_PORT=localhost:7233 \
//	./memoryd-worker
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/services"
	"github.com/fyrsmithlabs/memoryd/internal/workflows"
	"github.com/fyrsmithlabs/memoryd/pkg/agent"
	wf "github.com/fyrsmithlabs/memoryd/pkg/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default ~/.config/memoryd/config.yaml)")
	flag.Parse()

	// Create root context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize logging
	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info(ctx, "orchestration worker starting",
		zap.String("temporal_host", cfg.Workflow.HostPort),
		zap.String("namespace", cfg.Workflow.Namespace),
	)

	// Assemble the memory stack the activities record into
	reg, err := services.Build(cfg, logger.Underlying())
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}
	defer func() { _ = reg.Close() }()

	agents := agent.NewRegistry()
	registerBuiltinAgents(agents)

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Workflow.HostPort,
		Namespace: cfg.Workflow.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Workflow.HostPort))

	// Create worker
	w := worker.New(c, cfg.Workflow.TaskQueue, worker.Options{})

	// Register workflow
	w.RegisterWorkflow(workflows.OrchestrationWorkflow)

	// Register activities
	acts := workflows.NewActivities(reg.Memory(), agents, logger.Underlying().Named("activities"))
	w.RegisterActivity(acts)

	logger.Info(ctx, "worker configured",
		zap.String("task_queue", cfg.Workflow.TaskQueue),
		zap.Strings("agent_types", agents.Types()),
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "worker starting")
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	// Wait for shutdown signal or worker error
	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// Worker stops automatically on interrupt signal
	logger.Info(ctx, "worker stopped gracefully")
	return nil
}

// registerBuiltinAgents installs the agent types every worker ships
// with. Deployments register their own factories here before the worker
// starts polling.
func registerBuiltinAgents(agents *agent.Registry) {
	// echo replies with the task instructions unchanged, so plans can be
	// exercised end to end without a model backend.
	agents.Register("echo", func(ctx context.Context, actx agent.Context) (agent.Runner, error) {
		return agent.RunnerFunc(func(ctx context.Context, task wf.Task) (string, error) {
			return task.Instructions, nil
		}), nil
	})
}
