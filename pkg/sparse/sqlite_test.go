package sparse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestIndex opens an in-memory index, skipping when the sqlite driver was
// built without FTS5 (requires the sqlite_fts5 build tag).
func newTestIndex(t *testing.T) *Index {
	t.Helper()
	cfg := &Config{}
	cfg.SetDefaults()
	idx, err := NewIndex(cfg)
	if err != nil && strings.Contains(err.Error(), "no such module: fts5") {
		t.Skip("sqlite driver built without FTS5; rebuild with -tags sqlite_fts5")
	}
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seed(t *testing.T, idx *Index, chunks ...Chunk) {
	t.Helper()
	ctx := context.Background()
	for _, chunk := range chunks {
		require.NoError(t, idx.Add(ctx, chunk))
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		Chunk{ID: "c1", SessionID: "s1", Content: "circuit breakers trip after repeated failures"},
		Chunk{ID: "c2", SessionID: "s1", Content: "the breaker pattern guards failing dependencies; breaker state is per tool"},
		Chunk{ID: "c3", SessionID: "s1", Content: "retrieval fuses dense and sparse rankings"},
	)

	hits, err := idx.Search(context.Background(), "breaker", 10, "s1", nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// c2 mentions the term twice
	assert.Equal(t, "c2", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchScopedToSession(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		Chunk{ID: "c1", SessionID: "s1", Content: "alpha document"},
		Chunk{ID: "c2", SessionID: "s2", Content: "alpha document"},
	)

	hits, err := idx.Search(context.Background(), "alpha", 10, "s1", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
}

func TestSearchSourceAllowlist(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		Chunk{ID: "c1", SourceID: "docs", SessionID: "s1", Content: "alpha document"},
		Chunk{ID: "c2", SourceID: "web", SessionID: "s1", Content: "alpha document"},
		Chunk{ID: "c3", SourceID: "mail", SessionID: "s1", Content: "alpha document"},
	)

	hits, err := idx.Search(context.Background(), "alpha", 10, "s1", []string{"docs", "mail"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	ids := []string{hits[0].ChunkID, hits[1].ChunkID}
	assert.ElementsMatch(t, []string{"c1", "c3"}, ids)
}

func TestAddReplacesExistingChunk(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, Chunk{ID: "c1", SessionID: "s1", Content: "old text about gophers"})
	seed(t, idx, Chunk{ID: "c1", SessionID: "s1", Content: "new text about badgers"})

	hits, err := idx.Search(context.Background(), "gophers", 10, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "badgers", 10, "s1", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new text about badgers", hits[0].Content)
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, Chunk{ID: "c1", SessionID: "s1", Content: "ephemeral"})
	require.NoError(t, idx.Delete(context.Background(), "c1"))

	hits, err := idx.Search(context.Background(), "ephemeral", 10, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchOperatorsInQueryAreNeutralized(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, Chunk{ID: "c1", SessionID: "s1", Content: "results NEAR the top"})

	// NEAR, quotes, and parens are FTS5 syntax; the query must not error
	hits, err := idx.Search(context.Background(), `NEAR("top) AND`, 10, "s1", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
}

func TestSearchNoIndexableTokens(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, Chunk{ID: "c1", SessionID: "s1", Content: "anything"})

	hits, err := idx.Search(context.Background(), `"*()!`, 10, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchTopKLimit(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		Chunk{ID: "c1", SessionID: "s1", Content: "token"},
		Chunk{ID: "c2", SessionID: "s1", Content: "token"},
		Chunk{ID: "c3", SessionID: "s1", Content: "token"},
	)

	hits, err := idx.Search(context.Background(), "token", 2, "s1", nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search(context.Background(), "token", 0, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddRejectsEmptyID(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Add(context.Background(), Chunk{Content: "text"})
	assert.Error(t, err)
}
