package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
)

// itemResponse renders a stored item, scrubbing any text it carries.
func (s *Server) itemResponse(item *memory.Item) ItemResponse {
	return ItemResponse{
		Key:       item.Key,
		Scope:     item.Scope.String(),
		Value:     item.Value,
		Text:      s.scrub(item.Text()),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// handleStore stores content or a raw JSON value under a key.
func (s *Server) handleStore(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("store", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	var req StoreRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key field is required")
	}

	opts, err := targetOptions(req.Scope)
	if err != nil {
		return err
	}

	var item *memory.Item
	switch {
	case req.Content != "" && (req.MemoryType != "" || req.Importance > 0 || len(req.Tags) > 0):
		importance := req.Importance
		if importance == 0 {
			importance = memory.DefaultImportance
		}
		rich := memory.NewRichContent(req.Content, importance, req.MemoryType)
		if len(req.Tags) > 0 {
			rich = rich.WithTags(req.Tags...)
		}
		item, err = s.memory.StoreRich(ctx, req.Key, rich, opts...)
	case req.Content != "":
		item, err = s.memory.StoreContent(ctx, req.Key, req.Content, opts...)
	case len(req.Value) > 0:
		item, err = s.memory.Store(ctx, req.Key, req.Value, opts...)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "content or value field is required")
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, s.itemResponse(item))
}

// handleRetrieve returns the item stored under :key, falling back to
// child scopes unless ?children=false.
func (s *Server) handleRetrieve(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("retrieve", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	opts, err := targetOptions(c.QueryParam("scope"))
	if err != nil {
		return err
	}
	if children, perr := strconv.ParseBool(c.QueryParam("children")); perr == nil && !children {
		opts = append(opts, memory.WithoutChildFallback())
	}

	item, err := s.memory.Retrieve(ctx, c.Param("key"), opts...)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, s.itemResponse(item))
}

// handleDelete removes the item stored under :key.
func (s *Server) handleDelete(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("delete", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	opts, err := targetOptions(c.QueryParam("scope"))
	if err != nil {
		return err
	}

	if err = s.memory.Delete(ctx, c.Param("key"), opts...); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// handleListKeys lists keys visible in the requester's (or target) scope.
func (s *Server) handleListKeys(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("list_keys", start, err) }()

	ctx, requester, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	target := c.QueryParam("scope")
	opts, err := targetOptions(target)
	if err != nil {
		return err
	}
	if pattern := c.QueryParam("pattern"); pattern != "" {
		opts = append(opts, memory.MatchPattern(pattern))
	}
	if children, perr := strconv.ParseBool(c.QueryParam("children")); perr == nil && !children {
		opts = append(opts, memory.WithoutChildScopes())
	}

	keys, err := s.memory.ListKeys(ctx, opts...)
	if err != nil {
		return httpError(err)
	}

	scopeName := target
	if scopeName == "" {
		scopeName = requester.String()
	}
	return c.JSON(http.StatusOK, KeysResponse{Scope: scopeName, Keys: keys, Count: len(keys)})
}

// handleListScopes lists the non-empty scopes the requester can access.
func (s *Server) handleListScopes(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("list_scopes", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	scopes, err := s.memory.ListScopes(ctx)
	if err != nil {
		return httpError(err)
	}

	names := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		names = append(names, sc.String())
	}
	return c.JSON(http.StatusOK, ScopesResponse{Scopes: names, Count: len(names)})
}

// handleSearch finds memories matching the query.
func (s *Server) handleSearch(c echo.Context) (err error) {
	start := time.Now()
	defer func() { observeOp("search", start, err) }()

	ctx, _, err := s.requesterContext(c)
	if err != nil {
		return err
	}

	var req SearchRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	opts, err := targetOptions(req.Scope)
	if err != nil {
		return err
	}
	if req.Limit > 0 {
		opts = append(opts, memory.WithLimit(req.Limit))
	}
	if req.MinScore > 0 {
		opts = append(opts, memory.WithMinScore(req.MinScore))
	}

	hits, err := s.memory.Search(ctx, req.Query, opts...)
	if err != nil {
		return httpError(err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Key:     hit.Key,
			Scope:   hit.Scope.String(),
			Content: s.scrub(hit.Content),
			Score:   hit.Score,
		})
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results), Query: req.Query})
}
