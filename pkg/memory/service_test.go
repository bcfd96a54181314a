package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/pkg/scope"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

// mockIndex is a function-field mock of SearchIndex.
type mockIndex struct {
	indexFunc  func(ctx context.Context, entry IndexEntry) error
	removeFunc func(ctx context.Context, sc scope.Scope, key string) error
	queryFunc  func(ctx context.Context, q IndexQuery) ([]IndexHit, error)
}

func (m *mockIndex) Index(ctx context.Context, entry IndexEntry) error {
	if m.indexFunc != nil {
		return m.indexFunc(ctx, entry)
	}
	return nil
}

func (m *mockIndex) Remove(ctx context.Context, sc scope.Scope, key string) error {
	if m.removeFunc != nil {
		return m.removeFunc(ctx, sc, key)
	}
	return nil
}

func (m *mockIndex) Query(ctx context.Context, q IndexQuery) ([]IndexHit, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, q)
	}
	return nil, nil
}

func (m *mockIndex) Close() error { return nil }

// mockScrubber replaces text via the configured function.
type mockScrubber struct {
	scrubFunc func(text string) string
}

func (m *mockScrubber) ScrubText(text string) string {
	if m.scrubFunc != nil {
		return m.scrubFunc(text)
	}
	return text
}

// mockSink records published events.
type mockSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	event string
	scope scope.Scope
	key   string
}

func (m *mockSink) Publish(ctx context.Context, event string, sc scope.Scope, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sinkEvent{event: event, scope: sc, key: key})
}

func (m *mockSink) recorded() []sinkEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sinkEvent(nil), m.events...)
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(storage.NewMemoryProvider(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func scopedCtx(s string) context.Context {
	return scope.WithScope(context.Background(), scope.MustParse(s))
}

func TestNewService(t *testing.T) {
	t.Run("requires provider", func(t *testing.T) {
		_, err := NewService(nil, zap.NewNop())
		require.Error(t, err)
	})

	t.Run("nil logger ok", func(t *testing.T) {
		svc, err := NewService(storage.NewMemoryProvider(), nil)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestService_StoreRetrieve(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	item, err := svc.Store(ctx, "greeting", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "greeting", item.Key)
	assert.Equal(t, scope.MustParse("workflow:wf1"), item.Scope)
	assert.False(t, item.CreatedAt.IsZero())

	got, err := svc.Retrieve(ctx, "greeting")
	require.NoError(t, err)

	var text string
	require.NoError(t, got.Decode(&text))
	assert.Equal(t, "hello world", text)
}

func TestService_StoreStructuredValue(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	_, err := svc.Store(ctx, "config", payload{Name: "alpha", Count: 3})
	require.NoError(t, err)

	got, err := svc.Retrieve(ctx, "config")
	require.NoError(t, err)

	var decoded payload
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, payload{Name: "alpha", Count: 3}, decoded)
}

func TestService_StoreValidation(t *testing.T) {
	svc := newTestService(t)

	t.Run("missing scope fails closed", func(t *testing.T) {
		_, err := svc.Store(context.Background(), "k", "v")
		require.ErrorIs(t, err, scope.ErrNoScope)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := svc.Store(scopedCtx("workflow:wf1"), "", "v")
		require.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestService_StoreOverwritePreservesCreatedAt(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	first, err := svc.Store(ctx, "k", "one")
	require.NoError(t, err)

	second, err := svc.Store(ctx, "k", "two")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := svc.Retrieve(ctx, "k")
	require.NoError(t, err)

	var text string
	require.NoError(t, got.Decode(&text))
	assert.Equal(t, "two", text)
}

func TestService_ScopeAccess(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		target    string
		wantErr   error
	}{
		{name: "own scope", requester: "workflow:wf1", target: "workflow:wf1"},
		{name: "parent writes into child", requester: "workflow:wf1", target: "workflow:wf1:agent:a1"},
		{name: "global target readable", requester: "workflow:wf1", target: "global"},
		{name: "sibling denied", requester: "workflow:wf1", target: "workflow:wf2", wantErr: ErrScopeDenied},
		{name: "child cannot reach parent", requester: "workflow:wf1:agent:a1", target: "workflow:wf1", wantErr: ErrScopeDenied},
		{name: "prefix without boundary denied", requester: "workflow:wf1", target: "workflow:wf12", wantErr: ErrScopeDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			ctx := scopedCtx(tt.requester)

			_, err := svc.Store(ctx, "k", "v", InScope(scope.MustParse(tt.target)))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestService_RetrieveChildFallback(t *testing.T) {
	svc := newTestService(t)
	parent := scopedCtx("workflow:wf1")
	child := scopedCtx("workflow:wf1:agent:a1")

	_, err := svc.Store(child, "finding", "child data")
	require.NoError(t, err)

	t.Run("parent falls through to child", func(t *testing.T) {
		got, err := svc.Retrieve(parent, "finding")
		require.NoError(t, err)
		assert.Equal(t, scope.MustParse("workflow:wf1:agent:a1"), got.Scope)
	})

	t.Run("disabled fallback misses", func(t *testing.T) {
		_, err := svc.Retrieve(parent, "finding", WithoutChildFallback())
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("sibling scope never reached", func(t *testing.T) {
		other := scopedCtx("workflow:wf2")
		_, err := svc.Retrieve(other, "finding")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestService_RetrieveMiss(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Retrieve(scopedCtx("workflow:wf1"), "absent")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestService_RetrieveTouchesRichContent(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.StoreRich(ctx, "insight", NewRichContent("retries fix flaky tests", 0.8, TypeInsight))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Retrieve(ctx, "insight")
		require.NoError(t, err)
	}

	got, err := svc.Retrieve(ctx, "insight")
	require.NoError(t, err)

	rich, ok := got.Rich()
	require.True(t, ok)
	assert.Equal(t, 4, rich.AccessCount)
	assert.False(t, rich.LastAccessedAt.IsZero())
}

func TestService_Delete(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.Store(ctx, "k", "v")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "k"))

	_, err = svc.Retrieve(ctx, "k")
	require.ErrorIs(t, err, ErrKeyNotFound)

	err = svc.Delete(ctx, "k")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestService_ListKeys(t *testing.T) {
	svc := newTestService(t)
	parent := scopedCtx("workflow:wf1")
	child := scopedCtx("workflow:wf1:agent:a1")

	_, err := svc.Store(parent, "alpha", "1")
	require.NoError(t, err)
	_, err = svc.Store(parent, "beta", "2")
	require.NoError(t, err)
	_, err = svc.Store(child, "alpha", "3")
	require.NoError(t, err)
	_, err = svc.Store(child, "gamma_result", "4")
	require.NoError(t, err)

	t.Run("children included and deduplicated", func(t *testing.T) {
		keys, err := svc.ListKeys(parent)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta", "gamma_result"}, keys)
	})

	t.Run("without child scopes", func(t *testing.T) {
		keys, err := svc.ListKeys(parent, WithoutChildScopes())
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, keys)
	})

	t.Run("glob pattern", func(t *testing.T) {
		keys, err := svc.ListKeys(parent, MatchPattern("*_result"))
		require.NoError(t, err)
		assert.Equal(t, []string{"gamma_result"}, keys)
	})

	t.Run("child sees only its own keys", func(t *testing.T) {
		keys, err := svc.ListKeys(child)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "gamma_result"}, keys)
	})
}

func TestService_ListScopes(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Store(scopedCtx("workflow:wf1"), "k", "v")
	require.NoError(t, err)
	_, err = svc.Store(scopedCtx("workflow:wf1:agent:a1"), "k", "v")
	require.NoError(t, err)
	_, err = svc.Store(scopedCtx("workflow:wf2"), "k", "v")
	require.NoError(t, err)
	_, err = svc.Store(scopedCtx("global"), "k", "v")
	require.NoError(t, err)

	scopes, err := svc.ListScopes(scopedCtx("workflow:wf1"))
	require.NoError(t, err)
	assert.Equal(t, []scope.Scope{
		scope.MustParse("global"),
		scope.MustParse("workflow:wf1"),
		scope.MustParse("workflow:wf1:agent:a1"),
	}, scopes)
}

func TestService_SearchKeywordFallback(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.StoreContent(ctx, "deploy", "deploy the service to staging")
	require.NoError(t, err)
	_, err = svc.StoreContent(ctx, "deploy_checklist", "steps before release")
	require.NoError(t, err)
	_, err = svc.StoreContent(ctx, "rollback", "how to roll back a bad deploy")
	require.NoError(t, err)
	_, err = svc.StoreContent(ctx, "unrelated", "nothing to see here")
	require.NoError(t, err)

	results, err := svc.Search(ctx, "deploy")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Exact key match outranks prefix, which outranks substring.
	assert.Equal(t, "deploy", results[0].Key)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "deploy_checklist", results[1].Key)
	assert.InDelta(t, 0.9, results[1].Score, 1e-9)
	assert.Equal(t, "rollback", results[2].Key)
	assert.InDelta(t, 0.7, results[2].Score, 1e-9)
}

func TestService_SearchOptions(t *testing.T) {
	svc := newTestService(t)
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.StoreContent(ctx, "note1", "database connection pooling")
	require.NoError(t, err)
	_, err = svc.StoreContent(ctx, "note2", "database migrations")
	require.NoError(t, err)

	t.Run("limit", func(t *testing.T) {
		results, err := svc.Search(ctx, "database", WithLimit(1))
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("min score filters weak matches", func(t *testing.T) {
		results, err := svc.Search(ctx, "database", WithMinScore(0.95))
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := svc.Search(ctx, "")
		require.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestService_SearchCoversChildScopes(t *testing.T) {
	svc := newTestService(t)
	parent := scopedCtx("workflow:wf1")
	child := scopedCtx("workflow:wf1:agent:a1")

	_, err := svc.StoreContent(child, "finding", "the cache invalidation bug")
	require.NoError(t, err)

	results, err := svc.Search(parent, "cache invalidation")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scope.MustParse("workflow:wf1:agent:a1"), results[0].Scope)

	results, err = svc.Search(parent, "cache invalidation", WithoutChildScopes())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_SearchWithIndex(t *testing.T) {
	var gotQuery IndexQuery
	idx := &mockIndex{
		queryFunc: func(ctx context.Context, q IndexQuery) ([]IndexHit, error) {
			gotQuery = q
			return []IndexHit{
				{Scope: scope.MustParse("workflow:wf1"), Key: "a", Text: "alpha", Score: 0.95},
				{Scope: scope.MustParse("workflow:wf2"), Key: "b", Text: "beta", Score: 0.91},
				{Scope: scope.MustParse("workflow:wf1:agent:a1"), Key: "c", Text: "gamma", Score: 0.88},
			}, nil
		},
	}
	svc := newTestService(t, WithSearchIndex(idx))
	ctx := scopedCtx("workflow:wf1")

	results, err := svc.Search(ctx, "similar things", WithLimit(5), WithMinScore(0.5))
	require.NoError(t, err)

	assert.Equal(t, scope.MustParse("workflow:wf1"), gotQuery.Scope)
	assert.True(t, gotQuery.IncludeChildren)
	assert.Equal(t, 5, gotQuery.Limit)
	assert.InDelta(t, 0.5, gotQuery.MinScore, 1e-9)

	// The wf2 hit is outside the requester's reach and must be dropped.
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Key)
	assert.Equal(t, "c", results[1].Key)
}

func TestService_SearchIndexError(t *testing.T) {
	idx := &mockIndex{
		queryFunc: func(ctx context.Context, q IndexQuery) ([]IndexHit, error) {
			return nil, errors.New("index unavailable")
		},
	}
	svc := newTestService(t, WithSearchIndex(idx))

	_, err := svc.Search(scopedCtx("workflow:wf1"), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestService_IndexLifecycle(t *testing.T) {
	var (
		mu      sync.Mutex
		indexed []IndexEntry
		removed []string
	)
	idx := &mockIndex{
		indexFunc: func(ctx context.Context, entry IndexEntry) error {
			mu.Lock()
			defer mu.Unlock()
			indexed = append(indexed, entry)
			return nil
		},
		removeFunc: func(ctx context.Context, sc scope.Scope, key string) error {
			mu.Lock()
			defer mu.Unlock()
			removed = append(removed, sc.String()+"/"+key)
			return nil
		},
	}
	svc := newTestService(t, WithSearchIndex(idx))
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.StoreContent(ctx, "note", "remember this")
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	assert.Equal(t, "remember this", indexed[0].Text)
	assert.Equal(t, "note", indexed[0].Key)

	// Replacing text with a structured value deindexes the entry.
	_, err = svc.Store(ctx, "note", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Contains(t, removed, "workflow:wf1/note")

	_, err = svc.StoreContent(ctx, "note", "back again")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "note"))
	assert.Equal(t, []string{"workflow:wf1/note", "workflow:wf1/note"}, removed)
}

func TestService_IndexFailureDoesNotBlockStore(t *testing.T) {
	idx := &mockIndex{
		indexFunc: func(ctx context.Context, entry IndexEntry) error {
			return errors.New("index down")
		},
	}
	svc := newTestService(t, WithSearchIndex(idx))
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.StoreContent(ctx, "note", "still stored")
	require.NoError(t, err)

	got, err := svc.Retrieve(ctx, "note")
	require.NoError(t, err)
	assert.Equal(t, "still stored", got.Text())
}

func TestService_Scrubbing(t *testing.T) {
	scrubber := &mockScrubber{
		scrubFunc: func(text string) string {
			return "[REDACTED]"
		},
	}
	svc := newTestService(t, WithScrubber(scrubber))
	ctx := scopedCtx("workflow:wf1")

	t.Run("plain string", func(t *testing.T) {
		_, err := svc.Store(ctx, "secret", "AKIA1234")
		require.NoError(t, err)

		got, err := svc.Retrieve(ctx, "secret")
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED]", got.Text())
	})

	t.Run("rich content text", func(t *testing.T) {
		_, err := svc.StoreRich(ctx, "rich-secret", NewRichContent("token=abc", 0.5, TypeFact))
		require.NoError(t, err)

		got, err := svc.Retrieve(ctx, "rich-secret")
		require.NoError(t, err)
		rich, ok := got.Rich()
		require.True(t, ok)
		assert.Equal(t, "[REDACTED]", rich.Text)
		assert.Equal(t, TypeFact, rich.MemoryType)
	})

	t.Run("structured values untouched", func(t *testing.T) {
		_, err := svc.Store(ctx, "numbers", []int{1, 2, 3})
		require.NoError(t, err)

		got, err := svc.Retrieve(ctx, "numbers")
		require.NoError(t, err)
		var nums []int
		require.NoError(t, got.Decode(&nums))
		assert.Equal(t, []int{1, 2, 3}, nums)
	})
}

func TestService_Events(t *testing.T) {
	sink := &mockSink{}
	svc := newTestService(t, WithEventSink(sink))
	ctx := scopedCtx("workflow:wf1")

	_, err := svc.Store(ctx, "k", "v")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "k"))

	events := sink.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, sinkEvent{event: EventStored, scope: scope.MustParse("workflow:wf1"), key: "k"}, events[0])
	assert.Equal(t, sinkEvent{event: EventDeleted, scope: scope.MustParse("workflow:wf1"), key: "k"}, events[1])
}

func TestService_GlobalScopeVisibility(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Store(scopedCtx("global"), "shared", "visible to all")
	require.NoError(t, err)
	_, err = svc.Store(scopedCtx("workflow:wf1"), "private", "workflow only")
	require.NoError(t, err)

	t.Run("any scope reads global", func(t *testing.T) {
		got, err := svc.Retrieve(scopedCtx("workflow:wf2"), "shared", InScope(scope.Global))
		require.NoError(t, err)
		assert.Equal(t, "visible to all", got.Text())
	})

	t.Run("global requester stays in global", func(t *testing.T) {
		scopes, err := svc.ListScopes(scopedCtx("global"))
		require.NoError(t, err)
		assert.Equal(t, []scope.Scope{scope.Global}, scopes)
	})
}
