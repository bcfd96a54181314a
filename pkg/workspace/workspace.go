// Package workspace provides named shared scopes for multi-party
// collaboration. A workspace is a memory scope any holder of its ID can
// read and write; entries carry attribution recording who wrote them.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

// metadataKey is the reserved key holding the workspace record. It is
// hidden from key listings and search results.
const metadataKey = ".workspace"

// DefaultSearchLimit caps workspace search results when no limit is
// given.
const DefaultSearchLimit = 5

var (
	// ErrInvalidID reports a workspace ID that cannot form a scope segment.
	ErrInvalidID = errors.New("invalid workspace id")

	// ErrNotFound reports a workspace with no metadata record.
	ErrNotFound = errors.New("workspace not found")
)

// Workspace describes a collaboration scope.
type Workspace struct {
	// ID names the workspace. Possession of the ID grants access.
	ID string `json:"id"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	// CreatedBy is the scope that created the workspace.
	CreatedBy scope.Scope `json:"created_by"`

	// CreatedAt is when the workspace was created.
	CreatedAt time.Time `json:"created_at"`
}

// Scope returns the memory scope backing the workspace.
func (w *Workspace) Scope() scope.Scope {
	return scope.ForWorkspace(w.ID)
}

// Entry is one attributed workspace record.
type Entry struct {
	// Content is the stored payload, arbitrary JSON.
	Content json.RawMessage `json:"content"`

	// CreatedBy is the scope that wrote the entry.
	CreatedBy scope.Scope `json:"created_by"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`
}

// Decode unmarshals the entry's content into out.
func (e *Entry) Decode(out any) error {
	return memory.DecodeValue(e.Content, out)
}

// Result is one workspace search hit with attribution.
type Result struct {
	Key       string      `json:"key"`
	Content   string      `json:"content"`
	Score     float64     `json:"score"`
	CreatedBy scope.Scope `json:"created_by,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// NewID generates a workspace ID of the form "workspace_<8 hex chars>".
func NewID() string {
	return "workspace_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Service manages workspaces on top of the memory façade.
//
// Operations act inside the workspace's own scope: the caller's scope is
// read only for attribution, so any party holding the workspace ID can
// collaborate regardless of its position in the scope hierarchy.
type Service struct {
	memory *memory.Service
	logger *zap.Logger
}

// NewService creates a workspace service over the memory façade.
func NewService(mem *memory.Service, logger *zap.Logger) (*Service, error) {
	if mem == nil {
		return nil, errors.New("memory service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{memory: mem, logger: logger}, nil
}

// Create registers a new workspace and returns it. The ID is generated;
// name is an optional label.
func (s *Service) Create(ctx context.Context, name string) (*Workspace, error) {
	return s.createWithID(ctx, NewID(), name)
}

// CreateWithID registers a workspace under a caller-chosen ID. The ID
// must be a single valid scope segment.
func (s *Service) CreateWithID(ctx context.Context, id, name string) (*Workspace, error) {
	return s.createWithID(ctx, id, name)
}

func (s *Service) createWithID(ctx context.Context, id, name string) (*Workspace, error) {
	requester, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		ID:        id,
		Name:      name,
		CreatedBy: requester,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.memory.Store(scope.WithScope(ctx, ws), metadataKey, w); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", id, err)
	}

	s.logger.Info("created workspace",
		zap.String("workspace_id", id),
		zap.String("created_by", requester.String()))
	return w, nil
}

// Info returns the workspace record. ErrNotFound when the workspace was
// never created.
func (s *Service) Info(ctx context.Context, id string) (*Workspace, error) {
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}

	item, err := s.memory.Retrieve(scope.WithScope(ctx, ws), metadataKey, memory.WithoutChildFallback())
	if err != nil {
		if errors.Is(err, memory.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var w Workspace
	if err := item.Decode(&w); err != nil {
		return nil, fmt.Errorf("decoding workspace record %s: %w", id, err)
	}
	return &w, nil
}

// Write stores value under key in the workspace, attributed to the
// caller's scope. Existing entries are overwritten.
func (s *Service) Write(ctx context.Context, id, key string, value any) (*Entry, error) {
	requester, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}
	if key == metadataKey {
		return nil, fmt.Errorf("%w: %q is reserved", memory.ErrInvalidKey, metadataKey)
	}

	raw, err := memory.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Content:   raw,
		CreatedBy: requester,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.memory.Store(scope.WithScope(ctx, ws), key, entry); err != nil {
		return nil, fmt.Errorf("writing %s to workspace %s: %w", key, id, err)
	}

	s.logger.Debug("workspace write",
		zap.String("workspace_id", id),
		zap.String("key", key),
		zap.String("created_by", requester.String()))
	return entry, nil
}

// Read returns the entry stored under key in the workspace.
func (s *Service) Read(ctx context.Context, id, key string) (*Entry, error) {
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}

	item, err := s.memory.Retrieve(scope.WithScope(ctx, ws), key, memory.WithoutChildFallback())
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := item.Decode(&entry); err != nil || len(entry.Content) == 0 {
		// Not written through the workspace API; surface the raw value.
		return &Entry{Content: item.Value, CreatedAt: item.CreatedAt}, nil
	}
	return &entry, nil
}

// Delete removes the entry stored under key in the workspace.
func (s *Service) Delete(ctx context.Context, id, key string) error {
	ws, err := resolve(id)
	if err != nil {
		return err
	}
	if key == metadataKey {
		return fmt.Errorf("%w: %q is reserved", memory.ErrInvalidKey, metadataKey)
	}
	return s.memory.Delete(scope.WithScope(ctx, ws), key)
}

// Keys lists the entry keys in the workspace, sorted.
func (s *Service) Keys(ctx context.Context, id string) ([]string, error) {
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}

	keys, err := s.memory.ListKeys(scope.WithScope(ctx, ws), memory.WithoutChildScopes())
	if err != nil {
		return nil, err
	}

	out := keys[:0]
	for _, k := range keys {
		if k != metadataKey {
			out = append(out, k)
		}
	}
	return out, nil
}

// Search finds workspace entries matching the query, best match first.
// A limit <= 0 uses DefaultSearchLimit.
func (s *Service) Search(ctx context.Context, id, query string, limit int) ([]Result, error) {
	ws, err := resolve(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	wctx := scope.WithScope(ctx, ws)
	hits, err := s.memory.Search(wctx, query,
		memory.WithoutChildScopes(),
		memory.WithLimit(limit+1))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Key == metadataKey {
			continue
		}
		r := Result{
			Key:     hit.Key,
			Content: hit.Content,
			Score:   hit.Score,
		}
		// Recover attribution from the stored entry.
		if item, rerr := s.memory.Retrieve(wctx, hit.Key, memory.WithoutChildFallback()); rerr == nil {
			var entry Entry
			if derr := item.Decode(&entry); derr == nil && len(entry.Content) > 0 {
				r.CreatedBy = entry.CreatedBy
				r.CreatedAt = entry.CreatedAt
			}
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Remove deletes the workspace and all its entries.
func (s *Service) Remove(ctx context.Context, id string) error {
	ws, err := resolve(id)
	if err != nil {
		return err
	}

	wctx := scope.WithScope(ctx, ws)
	keys, err := s.memory.ListKeys(wctx, memory.WithoutChildScopes())
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.memory.Delete(wctx, key); err != nil && !errors.Is(err, memory.ErrKeyNotFound) {
			return fmt.Errorf("removing workspace %s: %w", id, err)
		}
	}

	s.logger.Info("removed workspace", zap.String("workspace_id", id))
	return nil
}

// List returns the workspaces that have a metadata record, sorted by ID.
func (s *Service) List(ctx context.Context) ([]*Workspace, error) {
	// The bare "workspace" scope is the parent of every workspace scope.
	pctx := scope.WithScope(ctx, scope.MustParse("workspace"))

	scopes, err := s.memory.ListScopes(pctx)
	if err != nil {
		return nil, err
	}

	var out []*Workspace
	for _, sc := range scopes {
		segs := sc.Segments()
		if len(segs) != 2 || segs[0] != "workspace" {
			continue
		}
		w, err := s.Info(ctx, segs[1])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// resolve validates the workspace ID and returns its scope.
func resolve(id string) (scope.Scope, error) {
	if id == "" || strings.Contains(id, scope.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	ws := scope.ForWorkspace(id)
	if _, err := scope.Parse(ws.String()); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return ws, nil
}
