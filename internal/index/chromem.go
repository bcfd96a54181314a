package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

const chromemBackend = "chromem"

var chromemTracer = otel.Tracer("memoryd.index.chromem")

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in
	// memory only.
	Path string

	// Collection names the chromem collection.
	// Default: "memoryd"
	Collection string

	// Compress enables gzip compression of persisted segments.
	Compress bool
}

func (c *ChromemConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "memoryd"
	}
}

// Chromem is the embedded vector index.
//
// chromem-go is pure Go, needs no external service, and always does
// exhaustive cosine search, so it suits the daemon's default
// single-process deployment.
type Chromem struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromem opens (or creates) the chromem collection.
//
// Persistent databases are opened through the quarantine path: a
// collection directory that lost its metadata file is moved aside so
// one corrupt collection cannot keep the daemon from starting.
func NewChromem(cfg ChromemConfig, embedder embeddings.Embedder, logger *zap.Logger) (*Chromem, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, pathErr := expandPath(cfg.Path)
		if pathErr != nil {
			return nil, fmt.Errorf("expanding path: %w", pathErr)
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		cfg.Path = path
		db, err = openResilientDB(path, cfg.Compress, logger)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database: %w", err)
		}
	}

	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", cfg.Collection, err)
	}

	s := &Chromem{
		db:         db,
		collection: collection,
		embedder:   embedder,
		config:     cfg,
		logger:     logger,
	}

	logger.Info("chromem index ready",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()),
	)
	return s, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// Upsert implements Store. Documents are embedded in one batch;
// existing IDs are replaced.
func (s *Chromem) Upsert(ctx context.Context, docs []Document) (err error) {
	ctx, span := chromemTracer.Start(ctx, "index.chromem.upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "upsert", start, err) }()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding documents: %w", err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Metadata:  doc.Metadata,
			Embedding: vectors[i],
		}
	}

	// Concurrency 1: the embeddings are already computed, chromem only
	// copies the documents in.
	if err = s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("indexed documents",
		zap.String("backend", chromemBackend),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Delete implements Store. Unknown IDs are ignored.
func (s *Chromem) Delete(ctx context.Context, ids []string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "index.chromem.delete")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "delete", start, err) }()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	if err = s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Query implements Store.
//
// Without IncludeChildren the scope is an exact metadata filter.
// chromem cannot express "scope or any descendant", so with
// IncludeChildren the whole collection is ranked and the Adapter
// filters by containment; chromem scans every vector either way, the
// wider k only changes how many results come back.
func (s *Chromem) Query(ctx context.Context, q Query) (hits []Hit, err error) {
	ctx, span := chromemTracer.Start(ctx, "index.chromem.query")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("scope", q.Scope),
		attribute.Bool("include_children", q.IncludeChildren),
		attribute.Int("limit", q.Limit),
	)

	if q.Text == "" {
		return nil, fmt.Errorf("query text required")
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	k := q.Limit
	if k <= 0 {
		k = DefaultQueryLimit
	}

	var where map[string]string
	if q.Scope != "" && !q.IncludeChildren {
		where = map[string]string{"scope": q.Scope}
	}
	if q.IncludeChildren || k > count {
		// chromem rejects nResults above the collection size.
		k = count
	}

	results, err := s.collection.Query(ctx, q.Text, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits = make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:       r.ID,
			Text:     r.Content,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	queryHits.WithLabelValues(chromemBackend).Observe(float64(len(hits)))
	return hits, nil
}

// Close implements Store. chromem persists on every write, so there
// is nothing to flush.
func (s *Chromem) Close() error {
	s.logger.Debug("chromem index closed")
	return nil
}

var _ Store = (*Chromem)(nil)
