package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

type fakeStore struct {
	upserts   [][]Document
	deletes   [][]string
	lastQuery Query
	queryFn   func(Query) ([]Hit, error)
	closed    bool
}

func (f *fakeStore) Upsert(_ context.Context, docs []Document) error {
	f.upserts = append(f.upserts, docs)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	f.deletes = append(f.deletes, ids)
	return nil
}

func (f *fakeStore) Query(_ context.Context, q Query) ([]Hit, error) {
	f.lastQuery = q
	if f.queryFn != nil {
		return f.queryFn(q)
	}
	return nil, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func storedHit(sc, key string, score float64) Hit {
	return Hit{ID: sc + docIDSeparator + key, Text: "text for " + key, Score: score}
}

func TestDocID_RoundTrip(t *testing.T) {
	tests := []struct {
		scope string
		key   string
	}{
		{"global", "preferences"},
		{"workflow:wf1", "status"},
		{"workflow:wf1:agent:a1", "task:1:result"},
		{"global", "odd\x1fkey"},
	}

	for _, tt := range tests {
		t.Run(tt.scope+"/"+tt.key, func(t *testing.T) {
			id := docID(scope.MustParse(tt.scope), tt.key)
			s, key, err := splitDocID(id)
			require.NoError(t, err)
			assert.Equal(t, tt.scope, s.String())
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestSplitDocID_Malformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"no separator", "workflow:wf1status"},
		{"empty scope", "\x1fstatus"},
		{"empty key", "workflow:wf1\x1f"},
		{"invalid scope", "not a scope!\x1fstatus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := splitDocID(tt.id)
			assert.Error(t, err)
		})
	}
}

func TestAdapter_Index(t *testing.T) {
	store := &fakeStore{}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	meta := map[string]string{"type": "fact"}
	err := adapter.Index(context.Background(), memory.IndexEntry{
		Scope:    scope.MustParse("workflow:wf1"),
		Key:      "status",
		Text:     "deploy api server",
		Metadata: meta,
	})
	require.NoError(t, err)

	require.Len(t, store.upserts, 1)
	require.Len(t, store.upserts[0], 1)
	doc := store.upserts[0][0]
	assert.Equal(t, "workflow:wf1"+docIDSeparator+"status", doc.ID)
	assert.Equal(t, "deploy api server", doc.Text)
	assert.Equal(t, "workflow:wf1", doc.Metadata["scope"])
	assert.Equal(t, "status", doc.Metadata["key"])
	assert.Equal(t, "fact", doc.Metadata["type"])

	assert.Equal(t, map[string]string{"type": "fact"}, meta, "caller metadata must not be mutated")
}

func TestAdapter_IndexWithoutTextDeletes(t *testing.T) {
	store := &fakeStore{}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	err := adapter.Index(context.Background(), memory.IndexEntry{
		Scope: scope.MustParse("workflow:wf1"),
		Key:   "status",
	})
	require.NoError(t, err)

	assert.Empty(t, store.upserts)
	require.Len(t, store.deletes, 1)
	assert.Equal(t, []string{"workflow:wf1" + docIDSeparator + "status"}, store.deletes[0])
}

func TestAdapter_Remove(t *testing.T) {
	store := &fakeStore{}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	require.NoError(t, adapter.Remove(context.Background(), scope.MustParse("workflow:wf1"), "status"))
	require.Len(t, store.deletes, 1)
	assert.Equal(t, []string{"workflow:wf1" + docIDSeparator + "status"}, store.deletes[0])
}

func TestAdapter_QueryEmptyTextSkipsStore(t *testing.T) {
	store := &fakeStore{queryFn: func(Query) ([]Hit, error) {
		t.Fatal("store must not be queried for empty text")
		return nil, nil
	}}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	hits, err := adapter.Query(context.Background(), memory.IndexQuery{
		Scope: scope.MustParse("workflow:wf1"),
	})
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestAdapter_QueryFilters(t *testing.T) {
	store := &fakeStore{queryFn: func(Query) ([]Hit, error) {
		return []Hit{
			{ID: "garbage-no-separator", Score: 0.99},
			storedHit("workflow:wf1", "status", 0.9),
			storedHit("workflow:wf2", "report", 0.85),
			storedHit("workflow:wf1:agent:a1", "note", 0.8),
			storedHit("workflow:wf1", "weak", 0.1),
		}, nil
	}}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	t.Run("children", func(t *testing.T) {
		hits, err := adapter.Query(context.Background(), memory.IndexQuery{
			Scope:           scope.MustParse("workflow:wf1"),
			IncludeChildren: true,
			Text:            "deploy",
			Limit:           10,
			MinScore:        0.5,
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "status", hits[0].Key)
		assert.Equal(t, "note", hits[1].Key)
		assert.Equal(t, scope.MustParse("workflow:wf1:agent:a1"), hits[1].Scope)
	})

	t.Run("exact scope", func(t *testing.T) {
		hits, err := adapter.Query(context.Background(), memory.IndexQuery{
			Scope:    scope.MustParse("workflow:wf1"),
			Text:     "deploy",
			Limit:    10,
			MinScore: 0.5,
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "status", hits[0].Key)
	})

	t.Run("limit truncates", func(t *testing.T) {
		hits, err := adapter.Query(context.Background(), memory.IndexQuery{
			Scope:           scope.MustParse("workflow:wf1"),
			IncludeChildren: true,
			Text:            "deploy",
			Limit:           1,
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "status", hits[0].Key)
	})
}

func TestAdapter_QueryDefaultLimit(t *testing.T) {
	store := &fakeStore{}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	_, err := adapter.Query(context.Background(), memory.IndexQuery{
		Scope: scope.MustParse("global"),
		Text:  "anything",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultQueryLimit, store.lastQuery.Limit)
	assert.Equal(t, "global", store.lastQuery.Scope)
}

func TestAdapter_QueryStoreError(t *testing.T) {
	wantErr := errors.New("backend down")
	store := &fakeStore{queryFn: func(Query) ([]Hit, error) { return nil, wantErr }}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	_, err := adapter.Query(context.Background(), memory.IndexQuery{
		Scope: scope.MustParse("global"),
		Text:  "anything",
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestAdapter_Close(t *testing.T) {
	store := &fakeStore{}
	adapter := NewAdapter(store, zaptest.NewLogger(t))

	require.NoError(t, adapter.Close())
	assert.True(t, store.closed)
}
