package databases

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path persists collections to disk when set; empty keeps them in memory.
	Path string `yaml:"path"`
}

// ChromemProvider is an embedded Provider for setups without a vector server.
type ChromemProvider struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemProvider creates an embedded store, persistent when config.Path
// is set.
func NewChromemProvider(config *ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB
	var err error
	if config != nil && config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, NewDatabaseError("chromem", "open", "opening persistent db", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &ChromemProvider{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Vectors are computed upstream by the embedder, so the collection's own
// embedding func must never run.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: embedding is handled by the embedder provider")
}

func (db *ChromemProvider) collection(name string) (*chromem.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c, err := db.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, NewDatabaseError("chromem", "collection", "creating collection "+name, err)
	}
	db.collections[name] = c
	return c, nil
}

// Upsert inserts or replaces a vector.
func (db *ChromemProvider) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]interface{}) error {
	c, err := db.collection(collection)
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(payload))
	content := ""
	for key, value := range payload {
		if key == "content" {
			if s, ok := value.(string); ok {
				content = s
				continue
			}
		}
		metadata[key] = fmt.Sprint(value)
	}

	err = c.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
		Metadata:  metadata,
	})
	if err != nil {
		return NewDatabaseError("chromem", "upsert", "adding document "+id, err)
	}
	return nil
}

// Search returns the topK nearest vectors.
func (db *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return db.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter restricts the search by exact metadata match.
func (db *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error) {
	c, err := db.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored documents.
	count := c.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for key, value := range filter {
			where[key] = fmt.Sprint(value)
		}
	}

	hits, err := c.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, NewDatabaseError("chromem", "search", "querying collection "+collection, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		metadata := make(map[string]interface{}, len(hit.Metadata)+1)
		for key, value := range hit.Metadata {
			metadata[key] = value
		}
		metadata["content"] = hit.Content

		results = append(results, SearchResult{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    hit.Similarity,
			Metadata: metadata,
		})
	}
	return results, nil
}

// Delete removes a document by ID.
func (db *ChromemProvider) Delete(ctx context.Context, collection, id string) error {
	c, err := db.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, nil, nil, id); err != nil {
		return NewDatabaseError("chromem", "delete", "deleting document "+id, err)
	}
	return nil
}

// Close is a no-op for the embedded store.
func (db *ChromemProvider) Close() error {
	return nil
}
