package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer(instrumentationName)

// Service is the scoped memory façade.
//
// Every operation resolves the requester scope from the context, checks
// it against the access controller, and only then touches the storage
// provider. Search prefers the configured index and falls back to
// keyword scanning when none is set.
type Service struct {
	provider storage.Provider
	access   scope.Controller
	index    SearchIndex
	scrubber Scrubber
	events   EventSink
	logger   *zap.Logger
	metrics  *metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAccessController replaces the default hierarchical controller.
func WithAccessController(c scope.Controller) ServiceOption {
	return func(s *Service) { s.access = c }
}

// WithSearchIndex enables index-backed semantic search.
func WithSearchIndex(idx SearchIndex) ServiceOption {
	return func(s *Service) { s.index = idx }
}

// WithScrubber scrubs secrets from textual content before persistence.
func WithScrubber(sc Scrubber) ServiceOption {
	return func(s *Service) { s.scrubber = sc }
}

// WithEventSink publishes lifecycle events for stores and deletes.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) { s.events = sink }
}

// NewService creates the memory façade over a storage provider.
//
// The default access controller is scope.NewHierarchical(). A nil logger
// falls back to a no-op logger.
func NewService(provider storage.Provider, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, errors.New("storage provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		provider: provider,
		access:   scope.NewHierarchical(),
		logger:   logger,
		metrics:  newMetrics(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the service's index and storage resources.
func (s *Service) Close() error {
	var errs []error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing index: %w", err))
		}
	}
	if err := s.provider.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}

// Store persists value under (key, target scope), overwriting any
// existing item. The target defaults to the requester's own scope;
// InScope overrides it subject to access control.
//
// Textual content is scrubbed when a scrubber is configured, and indexed
// for search when an index is configured.
func (s *Service) Store(ctx context.Context, key string, value any, opts ...Option) (item *Item, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.Store")
	defer span.End()
	defer func() { s.metrics.record(ctx, "store", start, err) }()

	requester, target, _, err := s.resolveCall(ctx, span, opts)
	if err != nil {
		return nil, err
	}
	if key == "" {
		err = fmt.Errorf("%w: empty key", ErrInvalidKey)
		return nil, err
	}
	span.SetAttributes(attribute.String("key", key))

	raw, err := EncodeValue(value)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	raw = s.scrubValue(raw)

	now := time.Now().UTC()
	item = &Item{
		Key:       key,
		Scope:     target,
		Value:     raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Preserve the original creation time across overwrites.
	if prev, loadErr := s.loadItem(ctx, target, key); loadErr == nil && !prev.CreatedAt.IsZero() {
		item.CreatedAt = prev.CreatedAt
	}

	envelope, err := json.Marshal(item)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("encoding item: %w", err)
	}
	if err = s.provider.Save(ctx, target.String(), key, envelope); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("storing %s in scope %s: %w", key, target, err)
	}

	s.indexItem(ctx, item)
	s.publish(ctx, EventStored, target, key)

	s.logger.Debug("stored memory item",
		zap.String("scope", target.String()),
		zap.String("key", key),
		zap.String("requester", requester.String()))
	span.SetStatus(codes.Ok, "stored")
	return item, nil
}

// StoreContent stores a plain textual Content payload.
func (s *Service) StoreContent(ctx context.Context, key, text string, opts ...Option) (*Item, error) {
	return s.Store(ctx, key, NewContent(text), opts...)
}

// StoreRich stores a RichContent payload, clamping its importance.
func (s *Service) StoreRich(ctx context.Context, key string, rc *RichContent, opts ...Option) (*Item, error) {
	if rc == nil {
		return nil, errors.New("rich content is required")
	}
	rc.Importance = clampImportance(rc.Importance)
	if rc.MemoryType == "" {
		rc.MemoryType = TypeGeneral
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now().UTC()
	}
	return s.Store(ctx, key, rc, opts...)
}

// Retrieve returns the item stored under key in the target scope.
//
// When the key is absent and child fallback is enabled (the default),
// accessible child scopes of the target are searched in sorted order and
// the first match is returned. A miss yields ErrKeyNotFound.
//
// Retrieving rich content records the access (count and timestamp)
// best-effort.
func (s *Service) Retrieve(ctx context.Context, key string, opts ...Option) (item *Item, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.Retrieve")
	defer span.End()
	defer func() { s.metrics.record(ctx, "retrieve", start, err) }()

	requester, target, o, err := s.resolveCall(ctx, span, opts)
	if err != nil {
		return nil, err
	}
	if key == "" {
		err = fmt.Errorf("%w: empty key", ErrInvalidKey)
		return nil, err
	}
	span.SetAttributes(attribute.String("key", key))

	item, err = s.loadItem(ctx, target, key)
	switch {
	case err == nil:
		s.touchItem(ctx, item)
		span.SetStatus(codes.Ok, "hit")
		return item, nil
	case !errors.Is(err, storage.ErrNotFound):
		span.RecordError(err)
		return nil, err
	}

	if o.childFallback {
		children, childErr := s.accessibleDescendants(ctx, requester, target)
		if childErr != nil {
			err = childErr
			span.RecordError(err)
			return nil, err
		}
		for _, child := range children {
			item, err = s.loadItem(ctx, child, key)
			if err == nil {
				s.touchItem(ctx, item)
				span.SetAttributes(attribute.String("resolved_scope", child.String()))
				span.SetStatus(codes.Ok, "child hit")
				return item, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				span.RecordError(err)
				return nil, err
			}
		}
	}

	err = fmt.Errorf("%w: %s in scope %s", ErrKeyNotFound, key, target)
	return nil, err
}

// Delete removes the item stored under key in the target scope.
// Returns ErrKeyNotFound when no item exists.
func (s *Service) Delete(ctx context.Context, key string, opts ...Option) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.Delete")
	defer span.End()
	defer func() { s.metrics.record(ctx, "delete", start, err) }()

	_, target, _, err := s.resolveCall(ctx, span, opts)
	if err != nil {
		return err
	}
	if key == "" {
		err = fmt.Errorf("%w: empty key", ErrInvalidKey)
		return err
	}
	span.SetAttributes(attribute.String("key", key))

	deleted, err := s.provider.Delete(ctx, target.String(), key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s in scope %s: %w", key, target, err)
	}
	if !deleted {
		err = fmt.Errorf("%w: %s in scope %s", ErrKeyNotFound, key, target)
		return err
	}

	if s.index != nil {
		if rmErr := s.index.Remove(ctx, target, key); rmErr != nil {
			s.logger.Warn("failed to deindex item",
				zap.String("scope", target.String()),
				zap.String("key", key),
				zap.Error(rmErr))
		}
	}
	s.publish(ctx, EventDeleted, target, key)

	span.SetStatus(codes.Ok, "deleted")
	return nil
}

// ListKeys returns the keys visible in the target scope, sorted and
// deduplicated. Child scopes accessible to the requester are included by
// default; MatchPattern filters with "*" wildcards.
func (s *Service) ListKeys(ctx context.Context, opts ...Option) (keys []string, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.ListKeys")
	defer span.End()
	defer func() { s.metrics.record(ctx, "list_keys", start, err) }()

	requester, target, o, err := s.resolveCall(ctx, span, opts)
	if err != nil {
		return nil, err
	}

	scopes := []scope.Scope{target}
	if o.includeChildren {
		children, childErr := s.accessibleDescendants(ctx, requester, target)
		if childErr != nil {
			err = childErr
			span.RecordError(err)
			return nil, err
		}
		scopes = append(scopes, children...)
	}

	seen := make(map[string]struct{})
	for _, sc := range scopes {
		scopeKeys, listErr := s.provider.ListKeys(ctx, sc.String())
		if listErr != nil {
			err = fmt.Errorf("listing keys in scope %s: %w", sc, listErr)
			span.RecordError(err)
			return nil, err
		}
		for _, k := range scopeKeys {
			seen[k] = struct{}{}
		}
	}

	var matcher func(string) bool
	if o.pattern != "" {
		re, reErr := compileGlob(o.pattern)
		if reErr != nil {
			err = reErr
			return nil, err
		}
		matcher = re.MatchString
	}

	keys = make([]string, 0, len(seen))
	for k := range seen {
		if matcher == nil || matcher(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	span.SetAttributes(attribute.Int("key_count", len(keys)))
	return keys, nil
}

// ListScopes returns the non-empty scopes accessible to the requester,
// sorted.
func (s *Service) ListScopes(ctx context.Context) (scopes []scope.Scope, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.ListScopes")
	defer span.End()
	defer func() { s.metrics.record(ctx, "list_scopes", start, err) }()

	requester, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("requester", requester.String()))

	raw, err := s.provider.ListScopes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing scopes: %w", err)
	}

	scopes = make([]scope.Scope, 0, len(raw))
	for _, r := range raw {
		sc, parseErr := scope.Parse(r)
		if parseErr != nil {
			s.logger.Warn("skipping unparsable stored scope", zap.String("scope", r))
			continue
		}
		if s.access.CanAccess(requester, sc) {
			scopes = append(scopes, sc)
		}
	}
	span.SetAttributes(attribute.Int("scope_count", len(scopes)))
	return scopes, nil
}

// Search returns stored content similar to the query, best match first.
//
// With a search index configured, similarity is semantic; otherwise the
// keyword fallback scores exact, prefix, and substring matches against
// keys and text. Hits are always filtered by access control.
func (s *Service) Search(ctx context.Context, query string, opts ...Option) (results []SearchResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service.Search")
	defer span.End()
	defer func() { s.metrics.record(ctx, "search", start, err) }()

	requester, target, o, err := s.resolveCall(ctx, span, opts)
	if err != nil {
		return nil, err
	}
	if query == "" {
		err = fmt.Errorf("%w: empty query", ErrInvalidQuery)
		return nil, err
	}
	if len(query) > maxQueryLength {
		err = fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, maxQueryLength)
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", o.limit))

	if s.index != nil {
		results, err = s.searchIndex(ctx, requester, target, query, o)
	} else {
		results, err = s.searchKeyword(ctx, requester, target, query, o)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// searchIndex queries the configured search index.
func (s *Service) searchIndex(ctx context.Context, requester, target scope.Scope, query string, o callOptions) ([]SearchResult, error) {
	hits, err := s.index.Query(ctx, IndexQuery{
		Scope:           target,
		IncludeChildren: o.includeChildren,
		Text:            query,
		Limit:           o.limit,
		MinScore:        o.minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if !s.access.CanAccess(requester, hit.Scope) {
			continue
		}
		results = append(results, SearchResult{
			Key:     hit.Key,
			Scope:   hit.Scope,
			Content: hit.Text,
			Score:   hit.Score,
		})
	}
	return results, nil
}

// searchKeyword scans accessible scopes and scores items lexically.
func (s *Service) searchKeyword(ctx context.Context, requester, target scope.Scope, query string, o callOptions) ([]SearchResult, error) {
	scopes := []scope.Scope{target}
	if o.includeChildren {
		children, err := s.accessibleDescendants(ctx, requester, target)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, children...)
	}

	var results []SearchResult
	for _, sc := range scopes {
		keys, err := s.provider.ListKeys(ctx, sc.String())
		if err != nil {
			return nil, fmt.Errorf("listing keys in scope %s: %w", sc, err)
		}
		for _, key := range keys {
			item, err := s.loadItem(ctx, sc, key)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			text := item.Text()
			score := keywordScore(query, key, text)
			if score < o.minScore {
				continue
			}
			content := text
			if content == "" {
				content = string(item.Value)
			}
			results = append(results, SearchResult{
				Key:     key,
				Scope:   sc,
				Content: content,
				Score:   score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Scope != results[j].Scope {
			return results[i].Scope < results[j].Scope
		}
		return results[i].Key < results[j].Key
	})
	if len(results) > o.limit {
		results = results[:o.limit]
	}
	return results, nil
}

// resolveCall extracts the requester, applies options, and enforces
// access to the target scope.
func (s *Service) resolveCall(ctx context.Context, span trace.Span, opts []Option) (requester, target scope.Scope, o callOptions, err error) {
	requester, err = scope.FromContext(ctx)
	if err != nil {
		return "", "", o, err
	}

	o = defaultCallOptions()
	for _, opt := range opts {
		opt(&o)
	}

	target = o.targetScope
	if target == "" {
		target = requester
	}

	span.SetAttributes(
		attribute.String("requester", requester.String()),
		attribute.String("scope", target.String()),
	)

	if !s.access.CanAccess(requester, target) {
		err = fmt.Errorf("%w: %s cannot access %s", ErrScopeDenied, requester, target)
		return "", "", o, err
	}
	return requester, target, o, nil
}

// accessibleDescendants returns the non-empty scopes strictly below
// target that the requester can access, sorted.
func (s *Service) accessibleDescendants(ctx context.Context, requester, target scope.Scope) ([]scope.Scope, error) {
	raw, err := s.provider.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}

	var out []scope.Scope
	for _, r := range raw {
		sc, parseErr := scope.Parse(r)
		if parseErr != nil || sc == target {
			continue
		}
		if target.Contains(sc) && s.access.CanAccess(requester, sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

// loadItem loads and decodes the stored envelope for (scope, key).
func (s *Service) loadItem(ctx context.Context, sc scope.Scope, key string) (*Item, error) {
	raw, err := s.provider.Load(ctx, sc.String(), key)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding stored item %s in scope %s: %w", key, sc, err)
	}
	return &item, nil
}

// touchItem records an access on rich content and rewrites it
// best-effort.
func (s *Service) touchItem(ctx context.Context, item *Item) {
	rich, ok := item.Rich()
	if !ok {
		return
	}
	rich.Touch()

	raw, err := EncodeValue(rich)
	if err != nil {
		return
	}
	item.Value = raw

	envelope, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := s.provider.Save(ctx, item.Scope.String(), item.Key, envelope); err != nil {
		s.logger.Warn("failed to record access",
			zap.String("scope", item.Scope.String()),
			zap.String("key", item.Key),
			zap.Error(err))
	}
}

// indexItem adds the item's text to the search index, or removes a stale
// entry when the new value has no text. Indexing is best-effort.
func (s *Service) indexItem(ctx context.Context, item *Item) {
	if s.index == nil {
		return
	}

	text := item.Text()
	if text == "" {
		if err := s.index.Remove(ctx, item.Scope, item.Key); err != nil {
			s.logger.Warn("failed to deindex item without text",
				zap.String("scope", item.Scope.String()),
				zap.String("key", item.Key),
				zap.Error(err))
		}
		return
	}

	entry := IndexEntry{
		Scope:    item.Scope,
		Key:      item.Key,
		Text:     text,
		Metadata: map[string]string{},
	}
	if rich, ok := item.Rich(); ok {
		entry.Metadata["memory_type"] = rich.MemoryType
	}

	if err := s.index.Index(ctx, entry); err != nil {
		s.logger.Warn("failed to index item",
			zap.String("scope", item.Scope.String()),
			zap.String("key", item.Key),
			zap.Error(err))
	}
}

// scrubValue scrubs secrets from textual payloads: plain JSON strings
// and the text field of content payloads. Structured values pass
// through untouched.
func (s *Service) scrubValue(raw json.RawMessage) json.RawMessage {
	if s.scrubber == nil {
		return raw
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		scrubbed, encErr := EncodeValue(s.scrubber.ScrubText(plain))
		if encErr != nil {
			return raw
		}
		return scrubbed
	}

	var rc RichContent
	if err := json.Unmarshal(raw, &rc); err == nil && rc.MemoryType != "" {
		rc.Text = s.scrubber.ScrubText(rc.Text)
		if scrubbed, encErr := EncodeValue(&rc); encErr == nil {
			return scrubbed
		}
		return raw
	}

	var c Content
	if err := json.Unmarshal(raw, &c); err == nil && c.Text != "" {
		c.Text = s.scrubber.ScrubText(c.Text)
		if scrubbed, encErr := EncodeValue(&c); encErr == nil {
			return scrubbed
		}
	}

	// A {"content": "..."} wrapper: scrub the wrapped string in place,
	// keeping sibling fields.
	if _, ok := unwrapContent(raw); ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			var text string
			if err := json.Unmarshal(fields["content"], &text); err == nil {
				if scrubbed, encErr := EncodeValue(s.scrubber.ScrubText(text)); encErr == nil {
					fields["content"] = scrubbed
					if out, mErr := json.Marshal(fields); mErr == nil {
						return out
					}
				}
			}
		}
	}
	return raw
}

// publish emits a lifecycle event when a sink is configured.
func (s *Service) publish(ctx context.Context, event string, sc scope.Scope, key string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event, sc, key)
}
