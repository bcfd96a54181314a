package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

const qdrantBackend = "qdrant"

var qdrantTracer = otel.Tracer("memoryd.index.qdrant")

// qdrantCollectionPattern validates collection names. Lowercase plus
// digits and underscore keeps names safe across qdrant versions.
var qdrantCollectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Payload keys reserved by the backend.
const (
	payloadID        = "id"
	payloadText      = "text"
	payloadScopePath = "scope_path"
)

// QdrantConfig configures the remote qdrant backend.
type QdrantConfig struct {
	// Host and Port locate the qdrant gRPC endpoint (6334, not the
	// 6333 HTTP port).
	Host string
	Port int

	// APIKey authenticates against qdrant cloud. Empty for local.
	APIKey string

	// Collection names the qdrant collection. Created on first use.
	Collection string

	// VectorSize is the embedding dimension; must match the embedder.
	VectorSize uint64

	// UseTLS enables transport security.
	UseTLS bool

	// Timeout bounds each gRPC call.
	// Default: 30s
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	// Default: 1s
	RetryBackoff time.Duration

	// BreakerThreshold opens the circuit after this many consecutive
	// failures. Default: 5
	BreakerThreshold int

	// BreakerCooldown is how long the circuit stays open.
	// Default: 30s
	BreakerCooldown time.Duration

	// MaxMessageSize caps gRPC messages. Default: 50MB, large enough
	// for bulk upserts of long memory values.
	MaxMessageSize int
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "memoryd"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

func (c *QdrantConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if !qdrantCollectionPattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q",
			ErrInvalidConfig, c.Collection)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// Qdrant is the remote vector index over gRPC.
//
// Transient failures are retried with exponential backoff; repeated
// failures open a circuit breaker so a dead qdrant degrades search
// instead of stalling every store operation on retries.
type Qdrant struct {
	client   *qdrant.Client
	embedder embeddings.Embedder
	config   QdrantConfig
	logger   *zap.Logger

	breaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

// NewQdrant connects to qdrant, verifies health, and ensures the
// collection exists.
func NewQdrant(cfg QdrantConfig, embedder embeddings.Embedder, logger *zap.Logger) (*Qdrant, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		clientCfg.GrpcOptions = append(clientCfg.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("qdrant connection is plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &Qdrant{
		client:   client,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Uint64("vector_size", cfg.VectorSize),
	)
	return s, nil
}

// ensureCollection creates the collection if it does not exist.
func (s *Qdrant) ensureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection %q: %w", s.config.Collection, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Lost a create race with another replica.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("creating collection %q: %w", s.config.Collection, err)
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	return nil
}

// Upsert implements Store. Point IDs are derived deterministically
// from the document ID so re-indexing the same scope and key replaces
// the existing point instead of accumulating duplicates.
func (s *Qdrant) Upsert(ctx context.Context, docs []Document) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "index.qdrant.upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "upsert", start, err) }()

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

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(deterministicPointID(doc.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: buildPayload(doc),
		}
	}

	err = s.do(ctx, "upsert", func(ctx context.Context) error {
		_, upsertErr := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return upsertErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Delete implements Store. Points are matched on the original document
// ID kept in the payload, so callers never see the derived point IDs.
func (s *Qdrant) Delete(ctx context.Context, ids []string) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "index.qdrant.delete")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "delete", start, err) }()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	err = s.do(ctx, "delete", func(ctx context.Context) error {
		_, delErr := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: payloadID,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keywords{
											Keywords: &qdrant.RepeatedStrings{Strings: ids},
										},
									},
								},
							},
						}},
					},
				},
			},
		})
		return delErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Query implements Store. Scope narrowing happens server-side: an
// exact match on the scope payload, or, with IncludeChildren, a match
// against the scope_path list that holds every ancestor of the
// document's scope.
func (s *Qdrant) Query(ctx context.Context, q Query) (hits []Hit, err error) {
	ctx, span := qdrantTracer.Start(ctx, "index.qdrant.query")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("scope", q.Scope),
		attribute.Bool("include_children", q.IncludeChildren),
		attribute.Int("limit", q.Limit),
	)

	if q.Text == "" {
		return nil, fmt.Errorf("query text required")
	}

	vector, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var filter *qdrant.Filter
	if q.Scope != "" {
		field := "scope"
		if q.IncludeChildren {
			field = payloadScopePath
		}
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: field,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: q.Scope},
						},
					},
				},
			}},
		}
	}

	var results []*qdrant.ScoredPoint
	err = s.do(ctx, "query", func(ctx context.Context) error {
		res, queryErr := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if queryErr != nil {
			return queryErr
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits = make([]Hit, 0, len(results))
	for _, point := range results {
		hits = append(hits, hitFromPoint(point))
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	queryHits.WithLabelValues(qdrantBackend).Observe(float64(len(hits)))
	return hits, nil
}

// Close implements Store.
func (s *Qdrant) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// do runs one gRPC operation with per-attempt timeout, retrying
// transient failures. The breaker is checked up front so an open
// circuit fails fast instead of burning the retry budget.
func (s *Qdrant) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if s.breakerIsOpen() {
		return fmt.Errorf("%s: %w", operation, ErrBreakerOpen)
	}

	backoff := s.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 0 {
				s.logger.Info("qdrant operation recovered",
					zap.String("operation", operation),
					zap.Int("attempts", attempt+1),
				)
			}
			s.breakerReset()
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		s.breakerRecord()

		if attempt == s.config.MaxRetries {
			break
		}
		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, s.config.MaxRetries+1, lastErr)
}

func (s *Qdrant) breakerRecord() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures++
	s.breaker.lastFail = time.Now()
}

func (s *Qdrant) breakerReset() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures = 0
}

func (s *Qdrant) breakerIsOpen() bool {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	if s.breaker.failures < s.config.BreakerThreshold {
		return false
	}
	if time.Since(s.breaker.lastFail) > s.config.BreakerCooldown {
		s.breaker.failures = 0
		return false
	}
	return true
}

// isTransient reports whether a gRPC error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// deterministicPointID maps a document ID to a stable UUID. Qdrant
// point IDs must be UUIDs or integers; deriving them keeps upserts
// idempotent.
func deterministicPointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

// buildPayload converts a document into a qdrant payload. The scope
// metadata additionally expands into scope_path, the list of every
// segment-boundary ancestor, which IncludeChildren queries match on.
func buildPayload(doc Document) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadID:   {Kind: &qdrant.Value_StringValue{StringValue: doc.ID}},
		payloadText: {Kind: &qdrant.Value_StringValue{StringValue: doc.Text}},
	}
	for k, v := range doc.Metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	if sc := doc.Metadata["scope"]; sc != "" {
		ancestors := scopeAncestors(sc)
		values := make([]*qdrant.Value, len(ancestors))
		for i, a := range ancestors {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: a}}
		}
		payload[payloadScopePath] = &qdrant.Value{
			Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}},
		}
	}
	return payload
}

// scopeAncestors returns every segment-boundary prefix of a scope,
// innermost last, including the scope itself.
func scopeAncestors(s string) []string {
	segments := strings.Split(s, scope.Separator)
	ancestors := make([]string, 0, len(segments))
	for i := range segments {
		ancestors = append(ancestors, strings.Join(segments[:i+1], scope.Separator))
	}
	return ancestors
}

// hitFromPoint extracts a Hit from a scored point. String payload
// entries other than the reserved keys come back as metadata.
func hitFromPoint(point *qdrant.ScoredPoint) Hit {
	hit := Hit{Score: float64(point.Score)}
	if point.Payload == nil {
		return hit
	}

	metadata := make(map[string]string)
	for k, v := range point.Payload {
		sv, ok := v.Kind.(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case payloadID:
			hit.ID = sv.StringValue
		case payloadText:
			hit.Text = sv.StringValue
		default:
			metadata[k] = sv.StringValue
		}
	}
	if len(metadata) > 0 {
		hit.Metadata = metadata
	}
	return hit
}

var _ Store = (*Qdrant)(nil)
