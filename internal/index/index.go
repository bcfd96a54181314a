package index

import (
	"context"
	"errors"
)

// DefaultQueryLimit caps queries that do not specify a limit.
const DefaultQueryLimit = 10

var (
	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrEmptyDocuments indicates an upsert with nothing to index.
	ErrEmptyDocuments = errors.New("no documents to index")

	// ErrConnectionFailed indicates the backend is unreachable.
	ErrConnectionFailed = errors.New("index backend unreachable")

	// ErrBreakerOpen indicates calls are being rejected after repeated
	// backend failures.
	ErrBreakerOpen = errors.New("index circuit breaker open")
)

// Document is one indexable piece of content.
//
// ID must be unique within the collection; upserting an existing ID
// replaces the document. Metadata values are stored alongside the
// vector and returned with hits.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Query describes a similarity search against a backend.
//
// Scope narrows hits to documents whose "scope" metadata matches
// exactly; IncludeChildren widens the match to descendant scopes.
// Backends narrow as precisely as they can server-side; the Adapter
// applies the authoritative containment filter on the way out.
type Query struct {
	Text            string
	Scope           string
	IncludeChildren bool
	Limit           int
}

// Hit is one backend search result, best first.
type Hit struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Store is a vector index backend.
type Store interface {
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, docs []Document) error

	// Delete removes documents by ID. Unknown IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Query returns documents similar to the query text.
	Query(ctx context.Context, q Query) ([]Hit, error)

	// Close releases backend resources.
	Close() error
}
