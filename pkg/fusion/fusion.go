// Package fusion merges dense vector search and sparse keyword search into
// one ranked list using Reciprocal Rank Fusion.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/striderhq/strider/pkg/databases"
	"github.com/striderhq/strider/pkg/sparse"
)

// Config configures the fusion engine.
type Config struct {
	// Collection is the dense vector collection to query.
	Collection string `yaml:"collection"`

	// RRFK is the rank-smoothing constant in 1/(rank+k).
	RRFK int `yaml:"rrf_k"`

	// TopK is the number of fused results returned.
	TopK int `yaml:"top_k"`

	// DenseN and SparseN are the per-backend candidate list sizes.
	DenseN  int `yaml:"dense_n"`
	SparseN int `yaml:"sparse_n"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "chunks"
	}
	if c.RRFK == 0 {
		c.RRFK = 60
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.DenseN == 0 {
		c.DenseN = 20
	}
	if c.SparseN == 0 {
		c.SparseN = 20
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.RRFK < 0 {
		return fmt.Errorf("fusion: rrf_k cannot be negative")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("fusion: top_k must be positive")
	}
	return nil
}

// Scope restricts retrieval to one session and optionally a set of sources.
type Scope struct {
	SessionID string
	SourceIDs []string
}

// Embedder embeds the query for the dense path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DenseSearcher is the vector store side of fusion.
type DenseSearcher interface {
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]databases.SearchResult, error)
}

// SparseSearcher is the keyword index side of fusion.
type SparseSearcher interface {
	Search(ctx context.Context, query string, topK int, sessionID string, sourceIDs []string) ([]sparse.Hit, error)
}

// Result is one fused chunk with its provenance scores. DenseRank and
// SparseRank are 1-based; zero means the chunk was absent from that list.
type Result struct {
	ChunkID    string
	Content    string
	Metadata   map[string]interface{}
	FusedScore float64
	DenseScore float32
	DenseRank  int
	SparseRank int
}

// Engine runs both retrieval paths and fuses the results.
type Engine struct {
	config   *Config
	embedder Embedder
	dense    DenseSearcher
	sparseix SparseSearcher
}

// NewEngine creates a fusion engine. Either backend may be nil, leaving the
// other path to carry retrieval alone.
func NewEngine(config *Config, embedder Embedder, dense DenseSearcher, sparseix SparseSearcher) (*Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("fusion: config cannot be nil")
	}
	if dense == nil && sparseix == nil {
		return nil, fmt.Errorf("fusion: at least one retrieval backend is required")
	}
	if dense != nil && embedder == nil {
		return nil, fmt.Errorf("fusion: dense retrieval requires an embedder")
	}
	return &Engine{
		config:   config,
		embedder: embedder,
		dense:    dense,
		sparseix: sparseix,
	}, nil
}

// Search retrieves from both backends and returns the fused top_k. A backend
// returning zero hits is not an error; the other list carries the ranking.
func (e *Engine) Search(ctx context.Context, query string, scope Scope) ([]Result, error) {
	candidates := make(map[string]*Result)

	if e.dense != nil {
		hits, err := e.denseSearch(ctx, query, scope)
		if err != nil {
			return nil, err
		}
		for i, hit := range hits {
			candidates[hit.ID] = &Result{
				ChunkID:    hit.ID,
				Content:    hit.Content,
				Metadata:   hit.Metadata,
				DenseScore: hit.Score,
				DenseRank:  i + 1,
			}
		}
	}

	if e.sparseix != nil {
		hits, err := e.sparseix.Search(ctx, query, e.config.SparseN, scope.SessionID, scope.SourceIDs)
		if err != nil {
			// The index degrades malformed queries internally, so an error
			// here is infrastructure, not input.
			return nil, fmt.Errorf("fusion: sparse search: %w", err)
		}
		for i, hit := range hits {
			if c, ok := candidates[hit.ChunkID]; ok {
				c.SparseRank = i + 1
				continue
			}
			candidates[hit.ChunkID] = &Result{
				ChunkID:    hit.ChunkID,
				Content:    hit.Content,
				SparseRank: i + 1,
			}
		}
	}

	fused := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		c.FusedScore = e.rrf(c.DenseRank) + e.rrf(c.SparseRank)
		fused = append(fused, *c)
	}

	// Descending fused score, then descending dense similarity, then chunk
	// ID ascending so equal-score orderings are stable across runs.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		if fused[i].DenseScore != fused[j].DenseScore {
			return fused[i].DenseScore > fused[j].DenseScore
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	if len(fused) > e.config.TopK {
		fused = fused[:e.config.TopK]
	}

	slog.Debug("fusion search complete",
		"query_len", len(query),
		"session", scope.SessionID,
		"candidates", len(candidates),
		"returned", len(fused))
	return fused, nil
}

func (e *Engine) denseSearch(ctx context.Context, query string, scope Scope) ([]databases.SearchResult, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fusion: embedding query: %w", err)
	}

	filter := make(map[string]interface{})
	if scope.SessionID != "" {
		filter["session_id"] = scope.SessionID
	}
	// Vector store filters are exact-match conjunctions, so a multi-source
	// allowlist is applied after the scoped search.
	if len(scope.SourceIDs) == 1 {
		filter["source_id"] = scope.SourceIDs[0]
	}

	hits, err := e.dense.SearchWithFilter(ctx, e.config.Collection, vector, e.config.DenseN, filter)
	if err != nil {
		return nil, fmt.Errorf("fusion: dense search: %w", err)
	}

	if len(scope.SourceIDs) > 1 {
		allowed := make(map[string]bool, len(scope.SourceIDs))
		for _, id := range scope.SourceIDs {
			allowed[id] = true
		}
		filtered := hits[:0]
		for _, hit := range hits {
			if src, ok := hit.Metadata["source_id"].(string); ok && allowed[src] {
				filtered = append(filtered, hit)
			}
		}
		hits = filtered
	}
	return hits, nil
}

// rrf computes the reciprocal-rank contribution for a 1-based rank; rank 0
// (absent from the list) contributes nothing.
func (e *Engine) rrf(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(rank+e.config.RRFK)
}
