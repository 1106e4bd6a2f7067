package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/striderhq/strider/pkg/databases"
	"github.com/striderhq/strider/pkg/sparse"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeDense struct {
	hits []databases.SearchResult
}

func (f *fakeDense) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]databases.SearchResult, error) {
	return f.hits, nil
}

type fakeSparse struct {
	hits []sparse.Hit
}

func (f *fakeSparse) Search(ctx context.Context, query string, topK int, sessionID string, sourceIDs []string) ([]sparse.Hit, error) {
	return f.hits, nil
}

func newTestEngine(t *testing.T, dense *fakeDense, sp *fakeSparse) *Engine {
	t.Helper()
	cfg := &Config{}
	cfg.SetDefaults()

	var denseSide DenseSearcher
	var embedder Embedder
	if dense != nil {
		denseSide = dense
		embedder = fakeEmbedder{}
	}
	var sparseSide SparseSearcher
	if sp != nil {
		sparseSide = sp
	}
	engine, err := NewEngine(cfg, embedder, denseSide, sparseSide)
	require.NoError(t, err)
	return engine
}

func TestFusionScoresBothLists(t *testing.T) {
	dense := &fakeDense{hits: []databases.SearchResult{
		{ID: "a", Content: "alpha", Score: 0.91},
		{ID: "b", Content: "beta", Score: 0.85},
	}}
	sp := &fakeSparse{hits: []sparse.Hit{
		{ChunkID: "b", Content: "beta", Score: 4.2},
		{ChunkID: "c", Content: "gamma", Score: 3.1},
	}}
	engine := newTestEngine(t, dense, sp)

	results, err := engine.Search(context.Background(), "query", Scope{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// b: dense rank 2 + sparse rank 1 with k=60
	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].FusedScore, 1e-12)
	// one-sided chunks still score from their single list
	assert.InDelta(t, 1.0/61, byID["a"].FusedScore, 1e-12)
	assert.InDelta(t, 1.0/62, byID["c"].FusedScore, 1e-12)

	// b appears in both lists, so it outranks either one-sided chunk
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestFusionTieBreakDenseScoreThenChunkID(t *testing.T) {
	// a at dense rank 1 and b at sparse rank 1 fuse to the same score;
	// a's dense similarity breaks the tie.
	dense := &fakeDense{hits: []databases.SearchResult{{ID: "a", Score: 0.9}}}
	sp := &fakeSparse{hits: []sparse.Hit{{ChunkID: "b"}}}
	engine := newTestEngine(t, dense, sp)

	results, err := engine.Search(context.Background(), "q", Scope{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].FusedScore, results[1].FusedScore)
	assert.Equal(t, "a", results[0].ChunkID)

	// With no dense scores at all, equal fused scores fall back to chunk
	// ID ascending. d and c both sit at rank 1 of their only list.
	engine = newTestEngine(t, &fakeDense{hits: []databases.SearchResult{{ID: "d"}}},
		&fakeSparse{hits: []sparse.Hit{{ChunkID: "c"}}})
	results, err = engine.Search(context.Background(), "q", Scope{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].ChunkID)
	assert.Equal(t, "d", results[1].ChunkID)
}

func TestFusionZeroHitsFromOneSideIsNotAnError(t *testing.T) {
	dense := &fakeDense{}
	sp := &fakeSparse{hits: []sparse.Hit{{ChunkID: "only", Content: "text"}}}
	engine := newTestEngine(t, dense, sp)

	results, err := engine.Search(context.Background(), "q", Scope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].ChunkID)
}

func TestFusionTopKTruncation(t *testing.T) {
	cfg := &Config{TopK: 2}
	cfg.SetDefaults()
	sp := &fakeSparse{hits: []sparse.Hit{
		{ChunkID: "1"}, {ChunkID: "2"}, {ChunkID: "3"}, {ChunkID: "4"},
	}}
	engine, err := NewEngine(cfg, nil, nil, sp)
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "q", Scope{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ChunkID)
}

func TestFusionConfigurableK(t *testing.T) {
	cfg := &Config{RRFK: 10}
	cfg.SetDefaults()
	sp := &fakeSparse{hits: []sparse.Hit{{ChunkID: "a"}}}
	engine, err := NewEngine(cfg, nil, nil, sp)
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "q", Scope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/11, results[0].FusedScore, 1e-12)
}

func TestFusionRequiresABackend(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	_, err := NewEngine(cfg, nil, nil, nil)
	assert.Error(t, err)

	// dense without an embedder is also a configuration error
	_, err = NewEngine(cfg, nil, &fakeDense{}, nil)
	assert.Error(t, err)
}
