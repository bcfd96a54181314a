// Memoryd is the scoped memory daemon for agent frameworks.
//
// It serves the memory system over an HTTP API and, with --mcp, over
// the MCP stdio transport for agent clients. Configuration is loaded
// from ~/.config/memoryd/config.yaml and MEMORYD_* environment
// variables; see internal/config.
//
// Usage:
//
//	# Start the HTTP API with defaults
//	memoryd
//
//	# Serve MCP on stdio (logs move to stderr)
//	memoryd --mcp
//
//	# Serve both, on a non-default port
//	memoryd --mcp --http :8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/httpapi"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	mcpserver "github.com/fyrsmithlabs/memoryd/internal/mcp"
	"github.com/fyrsmithlabs/memoryd/internal/services"
	"github.com/fyrsmithlabs/memoryd/internal/telemetry"
	"github.com/fyrsmithlabs/memoryd/pkg/workspace"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default ~/.config/memoryd/config.yaml)")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides config; with --mcp, serves both)")
	mcpMode := flag.Bool("mcp", false, "serve MCP on stdio instead of HTTP")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			return nil
		default:
			return fmt.Errorf("unknown command %q (try 'memoryd' or 'memoryd version')", args[0])
		}
	}

	// Create root context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	serveHTTP := !*mcpMode || *httpAddr != ""

	// Telemetry comes up first so the logger can bridge to it
	tel, err := telemetry.New(ctx, telemetryConfig(cfg), nil)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := buildLogger(cfg, tel, *verbose, *mcpMode)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if st := tel.Health(); st.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", st.Reason))
	}

	logger.Info(ctx, "memoryd starting",
		zap.String("version", version),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("index", cfg.Index.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("http", serveHTTP),
		zap.Bool("mcp", *mcpMode),
	)

	// fastembed needs the ONNX runtime on disk before the model loads
	if cfg.Index.Provider != "none" && cfg.Embeddings.Provider == "fastembed" {
		if _, err := embeddings.EnsureONNXRuntime(ctx, logger.Underlying()); err != nil {
			return err
		}
	}

	// Assemble the service stack
	reg, err := services.Build(cfg, logger.Underlying())
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}
	defer func() { _ = reg.Close() }()

	workspaces, err := workspace.NewService(reg.Memory(), logger.Underlying().Named("workspace"))
	if err != nil {
		return fmt.Errorf("creating workspace service: %w", err)
	}

	errCh := make(chan error, 2)

	var httpServer *httpapi.Server
	if serveHTTP {
		httpServer, err = httpapi.NewServer(&httpapi.Config{
			Addr:         cfg.Server.Addr,
			Version:      version,
			DefaultScope: cfg.Server.DefaultScope,
		}, reg.Memory(), workspaces, reg.Scrubber(), logger.Underlying().Named("http"))
		if err != nil {
			return fmt.Errorf("creating http server: %w", err)
		}
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if *mcpMode {
		mcpCfg := mcpserver.DefaultConfig()
		mcpCfg.Version = version
		mcpCfg.Logger = logger.Underlying().Named("mcp")
		if cfg.Server.DefaultScope != "" {
			mcpCfg.DefaultScope = cfg.Server.DefaultScope
		}

		srv, err := mcpserver.NewServer(mcpCfg, reg.Memory(), workspaces, reg.Scrubber())
		if err != nil {
			return fmt.Errorf("creating mcp server: %w", err)
		}
		go func() {
			// Run blocks until the client closes the session or ctx ends.
			errCh <- srv.Run(ctx)
		}()
	}

	// Wait for shutdown signal or a server error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	if httpServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "http shutdown failed", zap.Error(err))
		}
	}

	logger.Info(ctx, "memoryd stopped")
	return nil
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("memoryd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// telemetryConfig maps daemon config onto the telemetry defaults.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.ServiceVersion = version
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.Endpoint != "" {
		tc.Endpoint = cfg.Telemetry.Endpoint
	}
	tc.Insecure = cfg.Telemetry.Insecure
	if cfg.Telemetry.SampleRatio > 0 {
		tc.Sampling.Rate = cfg.Telemetry.SampleRatio
	}
	return tc
}

// buildLogger maps daemon config onto the logging defaults. In MCP mode
// console output moves to stderr; stdout carries the protocol stream.
func buildLogger(cfg *config.Config, tel *telemetry.Telemetry, verbose, mcpMode bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		lc.Level = level
	}
	if verbose {
		lc.Level = zapcore.DebugLevel
	}
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Output.OTEL = cfg.Logging.OTEL
	if mcpMode {
		lc.Output.Stdout = false
		lc.Output.Stderr = true
	}
	return logging.NewLogger(lc, tel.LoggerProvider())
}
