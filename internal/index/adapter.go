package index

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

// docIDSeparator joins scope and key into a document ID. The unit
// separator cannot appear in a valid scope, so the first occurrence
// always splits correctly even if a key contains it.
const docIDSeparator = "\x1f"

func docID(s scope.Scope, key string) string {
	return s.String() + docIDSeparator + key
}

func splitDocID(id string) (scope.Scope, string, bool) {
	rawScope, key, ok := strings.Cut(id, docIDSeparator)
	if !ok || key == "" {
		return "", "", false
	}
	s, err := scope.Parse(rawScope)
	if err != nil {
		return "", "", false
	}
	return s, key, true
}

// Adapter exposes a Store as the memory service's SearchIndex.
//
// It owns the scope semantics the backends only approximate: hits are
// re-checked for scope containment, filtered by minimum score, and
// truncated to the requested limit regardless of what the backend
// returned.
type Adapter struct {
	store  Store
	logger *zap.Logger
}

// NewAdapter wraps a backend store.
func NewAdapter(store Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, logger: logger}
}

// Index implements memory.SearchIndex. An entry without text removes
// any previously indexed document for the same scope and key, so
// overwriting a searchable value with a non-searchable one does not
// leave a stale hit behind.
func (a *Adapter) Index(ctx context.Context, entry memory.IndexEntry) error {
	id := docID(entry.Scope, entry.Key)
	if entry.Text == "" {
		return a.store.Delete(ctx, []string{id})
	}

	metadata := make(map[string]string, len(entry.Metadata)+2)
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata["scope"] = entry.Scope.String()
	metadata["key"] = entry.Key

	return a.store.Upsert(ctx, []Document{{
		ID:       id,
		Text:     entry.Text,
		Metadata: metadata,
	}})
}

// Remove implements memory.SearchIndex.
func (a *Adapter) Remove(ctx context.Context, s scope.Scope, key string) error {
	return a.store.Delete(ctx, []string{docID(s, key)})
}

// Query implements memory.SearchIndex.
func (a *Adapter) Query(ctx context.Context, q memory.IndexQuery) ([]memory.IndexHit, error) {
	if q.Text == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	hits, err := a.store.Query(ctx, Query{
		Text:            q.Text,
		Scope:           q.Scope.String(),
		IncludeChildren: q.IncludeChildren,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}

	results := make([]memory.IndexHit, 0, len(hits))
	for _, hit := range hits {
		s, key, ok := splitDocID(hit.ID)
		if !ok {
			a.logger.Warn("dropping index hit with malformed document id",
				zap.String("id", hit.ID))
			continue
		}
		if hit.Score < q.MinScore {
			continue
		}
		if q.Scope != "" {
			if q.IncludeChildren {
				if !q.Scope.Contains(s) {
					continue
				}
			} else if s != q.Scope {
				continue
			}
		}
		results = append(results, memory.IndexHit{
			Scope: s,
			Key:   key,
			Text:  hit.Text,
			Score: hit.Score,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Close implements memory.SearchIndex.
func (a *Adapter) Close() error {
	return a.store.Close()
}

var _ memory.SearchIndex = (*Adapter)(nil)
