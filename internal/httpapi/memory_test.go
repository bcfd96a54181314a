package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

func TestHandleStore(t *testing.T) {
	server := setupTestServer(t, nil)

	t.Run("stores text content", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
			Key:     "greeting",
			Content: "hello world",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[ItemResponse](t, rec)
		assert.Equal(t, "greeting", resp.Key)
		assert.Equal(t, "global", resp.Scope)
		assert.Equal(t, "hello world", resp.Text)
		assert.False(t, resp.UpdatedAt.IsZero())
	})

	t.Run("stores rich content", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
			Key:        "fact-1",
			Content:    "the deploy window opens at 9am",
			MemoryType: memory.TypeFact,
			Importance: 0.8,
			Tags:       []string{"deploys"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		gctx := scope.WithScope(context.Background(), scope.Global)
		item, err := server.memory.Retrieve(gctx, "fact-1")
		require.NoError(t, err)
		rich, ok := item.Rich()
		require.True(t, ok)
		assert.Equal(t, memory.TypeFact, rich.MemoryType)
		assert.InDelta(t, 0.8, rich.Importance, 1e-9)
		assert.Equal(t, []string{"deploys"}, rich.Tags)
	})

	t.Run("stores raw JSON value", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
			Key:   "settings",
			Value: json.RawMessage(`{"retries":3}`),
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[ItemResponse](t, rec)
		assert.JSONEq(t, `{"retries":3}`, string(resp.Value))
	})

	t.Run("stores into a target scope", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "team", StoreRequest{
			Key:     "shared",
			Content: "for the whole team",
			Scope:   "team:alpha",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[ItemResponse](t, rec)
		assert.Equal(t, "team:alpha", resp.Scope)
	})

	t.Run("rejects inaccessible target scope", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "team:alpha", StoreRequest{
			Key:     "sneaky",
			Content: "should not land",
			Scope:   "team:beta",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects missing key", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
			Content: "no key",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects empty body", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
			Key: "empty",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "content or value")
	})
}

func TestHandleRetrieve(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(server, http.MethodPost, "/api/v1/memory", "team:alpha", StoreRequest{
		Key:     "notes",
		Content: "alpha planning notes",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("returns stored item", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory/notes", "team:alpha", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ItemResponse](t, rec)
		assert.Equal(t, "notes", resp.Key)
		assert.Equal(t, "team:alpha", resp.Scope)
		assert.Equal(t, "alpha planning notes", resp.Text)
	})

	t.Run("falls back to child scopes", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory/notes", "team", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ItemResponse](t, rec)
		assert.Equal(t, "team:alpha", resp.Scope)
	})

	t.Run("children=false disables the fallback", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory/notes?children=false", "team", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing key is 404", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory/never-stored", "global", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("inaccessible target scope is 403", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory/notes?scope=team:alpha", "team:beta", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleDelete(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
		Key:     "doomed",
		Content: "temporary",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(server, http.MethodDelete, "/api/v1/memory/doomed", "global", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(server, http.MethodDelete, "/api/v1/memory/doomed", "global", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListKeys(t *testing.T) {
	server := setupTestServer(t, nil)

	for key, content := range map[string]string{
		"task:1": "first",
		"task:2": "second",
		"note:1": "a note",
	} {
		rec := do(server, http.MethodPost, "/api/v1/memory", "project", StoreRequest{Key: key, Content: content})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := do(server, http.MethodPost, "/api/v1/memory", "project:alpha", StoreRequest{
		Key: "child-key", Content: "nested",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("lists requester scope and children", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory", "project", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[KeysResponse](t, rec)
		assert.Equal(t, "project", resp.Scope)
		assert.ElementsMatch(t, []string{"note:1", "task:1", "task:2", "child-key"}, resp.Keys)
	})

	t.Run("children=false lists own scope only", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory?children=false", "project", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[KeysResponse](t, rec)
		assert.Equal(t, []string{"note:1", "task:1", "task:2"}, resp.Keys)
	})

	t.Run("pattern filters keys", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/memory?pattern=task:*&children=false", "project", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[KeysResponse](t, rec)
		assert.Equal(t, []string{"task:1", "task:2"}, resp.Keys)
	})
}

func TestHandleListScopes(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{Key: "g", Content: "global item"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(server, http.MethodPost, "/api/v1/memory", "team", StoreRequest{Key: "t", Content: "team item"})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("global requester sees only global", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/scopes", "global", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ScopesResponse](t, rec)
		assert.Equal(t, []string{"global"}, resp.Scopes)
	})

	t.Run("team requester sees team and global", func(t *testing.T) {
		rec := do(server, http.MethodGet, "/api/v1/scopes", "team", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ScopesResponse](t, rec)
		assert.ElementsMatch(t, []string{"global", "team"}, resp.Scopes)
	})
}

func TestHandleSearch(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
		Key: "standup", Content: "daily standup notes for the api team",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(server, http.MethodPost, "/api/v1/memory", "global", StoreRequest{
		Key: "finance", Content: "quarterly revenue summary",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("returns matches", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/search", "global", SearchRequest{Query: "revenue"})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[SearchResponse](t, rec)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "finance", resp.Results[0].Key)
		assert.GreaterOrEqual(t, resp.Results[0].Score, 0.7)
	})

	t.Run("respects min_score", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/search", "global", SearchRequest{
			Query:    "revenue",
			MinScore: 0.95,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[SearchResponse](t, rec)
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		rec := do(server, http.MethodPost, "/api/v1/search", "global", SearchRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
