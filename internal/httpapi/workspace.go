package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/memoryd/pkg/workspace"
)

func workspaceResponse(ws *workspace.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedBy: ws.CreatedBy.String(),
		CreatedAt: ws.CreatedAt,
	}
}

// entryResponse renders a workspace entry. Plain string content is also
// surfaced as scrubbed text.
func (s *Server) entryResponse(key string, entry *workspace.Entry) EntryResponse {
	resp := EntryResponse{
		Key:       key,
		Content:   entry.Content,
		CreatedBy: entry.CreatedBy.String(),
		CreatedAt: entry.CreatedAt,
	}
	var text string
	if err := json.Unmarshal(entry.Content, &text); err == nil {
		resp.Text = s.scrub(text)
	}
	return resp
}

// handleWorkspaceCreate creates a workspace, with a generated ID unless
// the body names one.
func (s *Server) handleWorkspaceCreate(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_create", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	var req WorkspaceCreateRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var ws *workspace.Workspace
	if req.ID != "" {
		ws, err = s.workspaces.CreateWithID(ctx, req.ID, req.Name)
	} else {
		ws, err = s.workspaces.Create(ctx, req.Name)
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, workspaceResponse(ws))
}

// handleWorkspaceList lists workspaces that have a metadata record.
func (s *Server) handleWorkspaceList(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_list", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	workspaces, err := s.workspaces.List(ctx)
	if err != nil {
		return httpError(err)
	}

	out := make([]WorkspaceResponse, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, workspaceResponse(ws))
	}
	return c.JSON(http.StatusOK, WorkspaceListResponse{Workspaces: out, Count: len(out)})
}

// handleWorkspaceInfo returns the workspace record for :id.
func (s *Server) handleWorkspaceInfo(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_info", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	ws, err := s.workspaces.Info(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, workspaceResponse(ws))
}

// handleWorkspaceWrite writes an entry into the workspace.
func (s *Server) handleWorkspaceWrite(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_write", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	var req WorkspaceWriteRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key field is required")
	}
	if len(req.Content) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	entry, err := s.workspaces.Write(ctx, c.Param("id"), req.Key, req.Content)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, s.entryResponse(req.Key, entry))
}

// handleWorkspaceRead returns the entry stored under :key.
func (s *Server) handleWorkspaceRead(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_read", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	key := c.Param("key")
	entry, err := s.workspaces.Read(ctx, c.Param("id"), key)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, s.entryResponse(key, entry))
}

// handleWorkspaceKeys lists entry keys in the workspace.
func (s *Server) handleWorkspaceKeys(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_keys", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	keys, err := s.workspaces.Keys(ctx, id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, WorkspaceKeysResponse{WorkspaceID: id, Keys: keys, Count: len(keys)})
}

// handleWorkspaceSearch finds workspace entries matching the query.
func (s *Server) handleWorkspaceSearch(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("workspace_search", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	var req WorkspaceSearchRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	id := c.Param("id")
	hits, err := s.workspaces.Search(ctx, id, req.Query, req.Limit)
	if err != nil {
		return httpError(err)
	}

	results := make([]WorkspaceSearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, WorkspaceSearchResult{
			Key:       hit.Key,
			Content:   s.scrub(hit.Content),
			Score:     hit.Score,
			CreatedBy: hit.CreatedBy.String(),
			CreatedAt: hit.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, WorkspaceSearchResponse{WorkspaceID: id, Results: results, Count: len(results)})
}
