package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

func newTestChromem(t *testing.T, path string) *Chromem {
	t.Helper()
	s, err := NewChromem(ChromemConfig{
		Path:       path,
		Collection: "test_memories",
	}, embeddings.NewHashProvider(0), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func testDoc(sc, key, text string) Document {
	return Document{
		ID:   sc + docIDSeparator + key,
		Text: text,
		Metadata: map[string]string{
			"scope": sc,
			"key":   key,
		},
	}
}

func seedDeployDocs(t *testing.T, s Store) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), []Document{
		testDoc("workflow:wf1", "status", "deploy api server"),
		testDoc("workflow:wf1:agent:a1", "note", "deploy api service"),
		testDoc("workflow:wf2", "report", "quarterly finance report"),
	}))
}

func TestNewChromem_RequiresEmbedder(t *testing.T) {
	_, err := NewChromem(ChromemConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromem_UpsertAndQuery(t *testing.T) {
	s := newTestChromem(t, "")
	seedDeployDocs(t, s)
	ctx := context.Background()

	hits, err := s.Query(ctx, Query{
		Text:  "deploy the api",
		Scope: "workflow:wf1",
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "workflow:wf1"+docIDSeparator+"status", hits[0].ID)
	assert.Equal(t, "deploy api server", hits[0].Text)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.Equal(t, "workflow:wf1", hits[0].Metadata["scope"])
}

func TestChromem_QueryIncludeChildrenRanksWholeCollection(t *testing.T) {
	s := newTestChromem(t, "")
	seedDeployDocs(t, s)

	hits, err := s.Query(context.Background(), Query{
		Text:            "deploy the api",
		Scope:           "workflow:wf1",
		IncludeChildren: true,
		Limit:           5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3, "the backend ranks everything; the adapter filters by containment")

	// Both deploy documents share tokens with the query and must
	// outrank the finance report.
	topIDs := []string{hits[0].ID, hits[1].ID}
	assert.Contains(t, topIDs, "workflow:wf1"+docIDSeparator+"status")
	assert.Contains(t, topIDs, "workflow:wf1:agent:a1"+docIDSeparator+"note")
	assert.Equal(t, "workflow:wf2"+docIDSeparator+"report", hits[2].ID)
}

func TestChromem_OverwriteSameID(t *testing.T) {
	s := newTestChromem(t, "")
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{testDoc("workflow:wf1", "note", "original deploy plan")}))
	require.NoError(t, s.Upsert(ctx, []Document{testDoc("workflow:wf1", "note", "revised deploy plan")}))

	assert.Equal(t, 1, s.collection.Count())

	hits, err := s.Query(ctx, Query{Text: "deploy plan", Scope: "workflow:wf1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "revised deploy plan", hits[0].Text)
}

func TestChromem_Delete(t *testing.T) {
	s := newTestChromem(t, "")
	ctx := context.Background()
	seedDeployDocs(t, s)

	require.NoError(t, s.Delete(ctx, []string{"workflow:wf1" + docIDSeparator + "status"}))
	assert.Equal(t, 2, s.collection.Count())

	// Unknown IDs are not an error.
	assert.NoError(t, s.Delete(ctx, []string{"workflow:none" + docIDSeparator + "missing"}))
	assert.NoError(t, s.Delete(ctx, nil))
}

func TestChromem_UpsertEmpty(t *testing.T) {
	s := newTestChromem(t, "")
	assert.ErrorIs(t, s.Upsert(context.Background(), nil), ErrEmptyDocuments)
}

func TestChromem_QueryValidation(t *testing.T) {
	s := newTestChromem(t, "")

	_, err := s.Query(context.Background(), Query{Text: ""})
	assert.Error(t, err)
}

func TestChromem_QueryEmptyCollection(t *testing.T) {
	s := newTestChromem(t, "")

	hits, err := s.Query(context.Background(), Query{Text: "anything", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromem_LimitCappedAtCollectionSize(t *testing.T) {
	s := newTestChromem(t, "")
	seedDeployDocs(t, s)

	hits, err := s.Query(context.Background(), Query{
		Text:            "deploy",
		IncludeChildren: true,
		Limit:           50,
	})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestChromem_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestChromem(t, dir)
	require.NoError(t, first.Upsert(ctx, []Document{testDoc("workflow:wf1", "status", "deploy api server")}))
	require.NoError(t, first.Close())

	reopened := newTestChromem(t, dir)
	assert.Equal(t, 1, reopened.collection.Count())

	hits, err := reopened.Query(ctx, Query{Text: "deploy api", Scope: "workflow:wf1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "deploy api server", hits[0].Text)
}

func TestAdapter_ChromemEndToEnd(t *testing.T) {
	adapter := NewAdapter(newTestChromem(t, ""), zaptest.NewLogger(t))
	ctx := context.Background()

	entries := []memory.IndexEntry{
		{Scope: scope.MustParse("workflow:wf1"), Key: "status", Text: "deploy api server",
			Metadata: map[string]string{"type": "observation"}},
		{Scope: scope.MustParse("workflow:wf1:agent:a1"), Key: "note", Text: "deploy api service"},
		{Scope: scope.MustParse("workflow:wf2"), Key: "report", Text: "quarterly finance report"},
	}
	for _, e := range entries {
		require.NoError(t, adapter.Index(ctx, e))
	}

	t.Run("children included, siblings excluded", func(t *testing.T) {
		hits, err := adapter.Query(ctx, memory.IndexQuery{
			Scope:           scope.MustParse("workflow:wf1"),
			IncludeChildren: true,
			Text:            "deploy the api",
			Limit:           10,
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.True(t, scope.MustParse("workflow:wf1").Contains(h.Scope),
				"hit outside the requested scope: %s", h.Scope)
		}
	})

	t.Run("exact scope only", func(t *testing.T) {
		hits, err := adapter.Query(ctx, memory.IndexQuery{
			Scope: scope.MustParse("workflow:wf1"),
			Text:  "deploy the api",
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "status", hits[0].Key)
	})

	t.Run("min score filters weak matches", func(t *testing.T) {
		hits, err := adapter.Query(ctx, memory.IndexQuery{
			Scope:           scope.MustParse("workflow:wf1"),
			IncludeChildren: true,
			Text:            "deploy the api",
			Limit:           10,
			MinScore:        0.99,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("re-store without text drops the stale hit", func(t *testing.T) {
		require.NoError(t, adapter.Index(ctx, memory.IndexEntry{
			Scope: scope.MustParse("workflow:wf1"),
			Key:   "status",
		}))
		hits, err := adapter.Query(ctx, memory.IndexQuery{
			Scope: scope.MustParse("workflow:wf1"),
			Text:  "deploy the api",
			Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, adapter.Remove(ctx, scope.MustParse("workflow:wf2"), "report"))
		hits, err := adapter.Query(ctx, memory.IndexQuery{
			Scope: scope.MustParse("workflow:wf2"),
			Text:  "finance report",
			Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
