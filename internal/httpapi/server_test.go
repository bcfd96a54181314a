package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/memoryd/internal/secrets"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
	"github.com/fyrsmithlabs/memoryd/pkg/workspace"
)

func newTestServices(t *testing.T) (*memory.Service, *workspace.Service, *secrets.Scrubber) {
	t.Helper()

	logger := zaptest.NewLogger(t)
	mem, err := memory.NewService(storage.NewMemoryProvider(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	ws, err := workspace.NewService(mem, logger)
	require.NoError(t, err)

	scrubber, err := secrets.New(secrets.Config{}, logger)
	require.NoError(t, err)

	return mem, ws, scrubber
}

func setupTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	mem, ws, scrubber := newTestServices(t)
	server, err := NewServer(cfg, mem, ws, scrubber, zaptest.NewLogger(t))
	require.NoError(t, err)
	return server
}

// do performs a request against the server's router. An empty scopeHeader
// leaves the X-Memory-Scope header unset.
func do(server *Server, method, target, scopeHeader string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if scopeHeader != "" {
		req.Header.Set(ScopeHeader, scopeHeader)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer(t *testing.T) {
	mem, ws, scrubber := newTestServices(t)
	logger := zap.NewNop()

	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Addr: "localhost:9091", Version: "1.0.0"}

		server, err := NewServer(cfg, mem, ws, scrubber, logger)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(nil, mem, ws, scrubber, logger)
		require.NoError(t, err)
		assert.Equal(t, ":9091", server.config.Addr)
	})

	t.Run("returns error when memory service is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, ws, scrubber, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "memory service is required")
	})

	t.Run("returns error when workspace service is nil", func(t *testing.T) {
		_, err := NewServer(nil, mem, nil, scrubber, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "workspace service is required")
	})

	t.Run("returns error when scrubber is nil", func(t *testing.T) {
		_, err := NewServer(nil, mem, ws, nil, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "scrubber cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(nil, mem, ws, scrubber, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("rejects invalid default scope", func(t *testing.T) {
		cfg := &Config{Addr: ":0", DefaultScope: "not a scope"}
		_, err := NewServer(cfg, mem, ws, scrubber, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid default scope")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &Config{Addr: ":0", Version: "1.2.3"})

	rec := do(server, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestScopeHeader(t *testing.T) {
	t.Run("missing header without default is rejected", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := do(server, http.MethodGet, "/api/v1/memory", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), ScopeHeader)
	})

	t.Run("configured default fills in", func(t *testing.T) {
		server := setupTestServer(t, &Config{Addr: ":0", DefaultScope: "global"})

		rec := do(server, http.MethodGet, "/api/v1/memory", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		resp := decode[KeysResponse](t, rec)
		assert.Equal(t, "global", resp.Scope)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := do(server, http.MethodGet, "/api/v1/memory", "not a scope", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid scope")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, nil)

	// Drive one operation so the API series exist.
	rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
		Key:     "metric-seed",
		Content: "observe me",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(server, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "memoryd_api_operations_total"),
		"expected operation counter in metrics output")
	assert.True(t, strings.Contains(body, "memoryd_api_operation_duration_seconds"),
		"expected operation duration histogram in metrics output")
}
