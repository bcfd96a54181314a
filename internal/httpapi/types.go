package httpapi

import (
	"encoding/json"
	"time"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// StoreRequest is the request body for POST /api/v1/memory.
//
// Either Content (text, optionally with the rich fields) or Value
// (arbitrary JSON) must be set. Scope targets a scope other than the
// requester's own.
type StoreRequest struct {
	Key        string          `json:"key"`
	Content    string          `json:"content,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	Importance float64         `json:"importance,omitempty"`
	MemoryType string          `json:"memory_type,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
}

// ItemResponse is the JSON rendering of a stored memory item.
type ItemResponse struct {
	Key       string          `json:"key"`
	Scope     string          `json:"scope"`
	Value     json.RawMessage `json:"value"`
	Text      string          `json:"text,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// KeysResponse is the response body for GET /api/v1/memory.
type KeysResponse struct {
	Scope string   `json:"scope"`
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// ScopesResponse is the response body for GET /api/v1/scopes.
type ScopesResponse struct {
	Scopes []string `json:"scopes"`
	Count  int      `json:"count"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query    string  `json:"query"`
	Scope    string  `json:"scope,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResult is one hit in a SearchResponse.
type SearchResult struct {
	Key     string  `json:"key"`
	Scope   string  `json:"scope"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
	Query   string         `json:"query"`
}

// WorkspaceCreateRequest is the request body for POST /api/v1/workspaces.
// ID is optional; when empty one is generated.
type WorkspaceCreateRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WorkspaceResponse is the JSON rendering of a workspace record.
type WorkspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkspaceListResponse is the response body for GET /api/v1/workspaces.
type WorkspaceListResponse struct {
	Workspaces []WorkspaceResponse `json:"workspaces"`
	Count      int                 `json:"count"`
}

// WorkspaceWriteRequest is the request body for
// POST /api/v1/workspaces/:id/entries. Content is arbitrary JSON.
type WorkspaceWriteRequest struct {
	Key     string          `json:"key"`
	Content json.RawMessage `json:"content"`
}

// EntryResponse is the JSON rendering of a workspace entry.
type EntryResponse struct {
	Key       string          `json:"key"`
	Content   json.RawMessage `json:"content"`
	Text      string          `json:"text,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// WorkspaceKeysResponse is the response body for
// GET /api/v1/workspaces/:id/entries.
type WorkspaceKeysResponse struct {
	WorkspaceID string   `json:"workspace_id"`
	Keys        []string `json:"keys"`
	Count       int      `json:"count"`
}

// WorkspaceSearchRequest is the request body for
// POST /api/v1/workspaces/:id/search.
type WorkspaceSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// WorkspaceSearchResult is one hit in a WorkspaceSearchResponse.
type WorkspaceSearchResult struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// WorkspaceSearchResponse is the response body for
// POST /api/v1/workspaces/:id/search.
type WorkspaceSearchResponse struct {
	WorkspaceID string                  `json:"workspace_id"`
	Results     []WorkspaceSearchResult `json:"results"`
	Count       int                     `json:"count"`
}
