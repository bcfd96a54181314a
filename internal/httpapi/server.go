// Package httpapi provides the HTTP API for memoryd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/secrets"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
	"github.com/fyrsmithlabs/memoryd/pkg/workspace"
)

// ScopeHeader names the header carrying the requester scope.
const ScopeHeader = "X-Memory-Scope"

// Server provides HTTP endpoints over the memory and workspace services.
type Server struct {
	echo       *echo.Echo
	memory     *memory.Service
	workspaces *workspace.Service
	scrubber   *secrets.Scrubber
	metrics    *HTTPMetrics
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":9091".
	Addr string

	// Version is reported by GET /health.
	Version string

	// DefaultScope is assumed for requests without a scope header.
	// Empty means the header is required.
	DefaultScope string
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, mem *memory.Service, workspaces *workspace.Service, scrubber *secrets.Scrubber, logger *zap.Logger) (*Server, error) {
	if mem == nil {
		return nil, fmt.Errorf("memory service is required")
	}
	if workspaces == nil {
		return nil, fmt.Errorf("workspace service is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: ":9091"}
	}
	if cfg.DefaultScope != "" {
		if _, err := scope.Parse(cfg.DefaultScope); err != nil {
			return nil, fmt.Errorf("invalid default scope: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		memory:     mem,
		workspaces: workspaces,
		scrubber:   scrubber,
		metrics:    NewHTTPMetrics(logger),
		logger:     logger,
		config:     cfg,
	}
	e.Use(s.metrics.MetricsMiddleware())

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/memory", s.handleStore)
	v1.GET("/memory", s.handleListKeys)
	v1.GET("/memory/:key", s.handleRetrieve)
	v1.DELETE("/memory/:key", s.handleDelete)
	v1.GET("/scopes", s.handleListScopes)
	v1.POST("/search", s.handleSearch)

	v1.POST("/workspaces", s.handleWorkspaceCreate)
	v1.GET("/workspaces", s.handleWorkspaceList)
	v1.GET("/workspaces/:id", s.handleWorkspaceInfo)
	v1.POST("/workspaces/:id/entries", s.handleWorkspaceWrite)
	v1.GET("/workspaces/:id/entries", s.handleWorkspaceKeys)
	v1.GET("/workspaces/:id/entries/:key", s.handleWorkspaceRead)
	v1.POST("/workspaces/:id/search", s.handleWorkspaceSearch)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// requesterContext resolves the requester scope from the scope header,
// falling back to the configured default, and injects it into the
// request context.
func (s *Server) requesterContext(c echo.Context) (context.Context, scope.Scope, error) {
	raw := c.Request().Header.Get(ScopeHeader)
	if raw == "" {
		raw = s.config.DefaultScope
	}
	if raw == "" {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s header is required", ScopeHeader))
	}
	requester, err := scope.Parse(raw)
	if err != nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid scope %q", raw))
	}
	return scope.WithScope(c.Request().Context(), requester), requester, nil
}

// targetOptions turns an optional target scope string into service options.
func targetOptions(target string) ([]memory.Option, error) {
	if target == "" {
		return nil, nil
	}
	sc, err := scope.Parse(target)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid scope %q", target))
	}
	return []memory.Option{memory.InScope(sc)}, nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, memory.ErrScopeDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, memory.ErrKeyNotFound),
		errors.Is(err, workspace.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrInvalidKey),
		errors.Is(err, memory.ErrInvalidQuery),
		errors.Is(err, workspace.ErrInvalidID),
		errors.Is(err, scope.ErrInvalidScope),
		errors.Is(err, scope.ErrNoScope):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

// scrub removes secrets from response text.
func (s *Server) scrub(text string) string {
	return s.scrubber.ScrubText(text)
}

// Echo exposes the underlying router, mainly for extra route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
