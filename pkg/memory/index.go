package memory

import (
	"context"

	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

// SearchIndex is the semantic search backend consumed by the service.
//
// The interface decouples the façade from the concrete vector store; the
// index adapter in internal/index implements it over chromem or Qdrant.
// Indexing is best-effort: the service treats index failures as
// non-fatal and logs them.
type SearchIndex interface {
	// Index inserts or replaces the entry for (scope, key).
	Index(ctx context.Context, entry IndexEntry) error

	// Remove deletes the entry for (scope, key). Unknown entries are
	// not an error.
	Remove(ctx context.Context, s scope.Scope, key string) error

	// Query returns entries similar to the query text, best first.
	Query(ctx context.Context, q IndexQuery) ([]IndexHit, error)

	// Close releases index resources.
	Close() error
}

// IndexEntry is one indexable piece of content.
type IndexEntry struct {
	Scope scope.Scope
	Key   string
	Text  string

	// Metadata carries filterable attributes (memory type, tags).
	Metadata map[string]string
}

// IndexQuery describes a similarity search.
type IndexQuery struct {
	// Scope restricts hits to this scope.
	Scope scope.Scope

	// IncludeChildren additionally admits hits from scopes contained in
	// Scope (segment-boundary descendants).
	IncludeChildren bool

	// Text is the query text.
	Text string

	// Limit caps the number of hits.
	Limit int

	// MinScore drops hits scoring below it.
	MinScore float64
}

// IndexHit is one search index result.
type IndexHit struct {
	Scope scope.Scope
	Key   string
	Text  string
	Score float64
}

// SearchResult is one façade search result, from the index or from the
// keyword fallback.
type SearchResult struct {
	// Key and Scope locate the matching item.
	Key   string      `json:"key"`
	Scope scope.Scope `json:"scope"`

	// Content is the matching text.
	Content string `json:"content"`

	// Score is the similarity in [0, 1], higher is better.
	Score float64 `json:"score"`
}

// Scrubber removes secrets from text before it is persisted or returned.
type Scrubber interface {
	ScrubText(text string) string
}

// Event kinds published by the service.
const (
	EventStored  = "stored"
	EventDeleted = "deleted"
)

// EventSink receives lifecycle events. Publishing must not block the
// operation; implementations log and drop on failure.
type EventSink interface {
	Publish(ctx context.Context, event string, s scope.Scope, key string)
}
