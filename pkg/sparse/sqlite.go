// Package sparse provides the keyword retrieval side of hybrid search: an
// SQLite FTS5 index ranked with BM25.
package sparse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the sparse index.
type Config struct {
	// Path is the SQLite database file. ":memory:" keeps the index in RAM.
	Path string `yaml:"path"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
}

// Chunk is one indexed text unit.
type Chunk struct {
	ID        string
	SourceID  string
	SessionID string
	Content   string
}

// Hit is a scored sparse match. Higher Score is better.
type Hit struct {
	ChunkID   string
	SourceID  string
	SessionID string
	Content   string
	Score     float64
}

// Index is an FTS5-backed keyword index.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks USING fts5(
	content,
	chunk_id UNINDEXED,
	source_id UNINDEXED,
	session_id UNINDEXED
);`

// NewIndex opens (or creates) the index at config.Path.
func NewIndex(config *Config) (*Index, error) {
	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("sparse: opening index at %s: %w", config.Path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sparse: creating fts5 table: %w", err)
	}
	return &Index{db: db}, nil
}

// Add indexes a chunk, replacing any previous version with the same ID.
func (idx *Index) Add(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("sparse: chunk id cannot be empty")
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sparse: starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE chunk_id = ?`, chunk.ID); err != nil {
		return fmt.Errorf("sparse: removing stale chunk %s: %w", chunk.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (content, chunk_id, source_id, session_id) VALUES (?, ?, ?, ?)`,
		chunk.Content, chunk.ID, chunk.SourceID, chunk.SessionID); err != nil {
		return fmt.Errorf("sparse: indexing chunk %s: %w", chunk.ID, err)
	}
	return tx.Commit()
}

// Delete removes a chunk by ID.
func (idx *Index) Delete(ctx context.Context, chunkID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`, chunkID)
	if err != nil {
		return fmt.Errorf("sparse: deleting chunk %s: %w", chunkID, err)
	}
	return nil
}

// Search runs a BM25-ranked keyword query scoped to a session and optional
// source allowlist. Queries that FTS5 rejects are retried as a literal
// phrase; a query with no indexable tokens returns no hits.
func (idx *Index) Search(ctx context.Context, query string, topK int, sessionID string, sourceIDs []string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	match := buildMatchExpression(query)
	if match == "" {
		return nil, nil
	}

	hits, err := idx.search(ctx, match, topK, sessionID, sourceIDs)
	if err == nil {
		return hits, nil
	}

	// FTS5 syntax errors come back as plain query errors. Degrade to a
	// literal phrase before giving up.
	escErr := &QueryEscapeError{Query: query, Err: err}
	slog.Warn("sparse query rejected, retrying as literal phrase", "error", escErr)

	hits, err = idx.search(ctx, quoteLiteral(query), topK, sessionID, sourceIDs)
	if err != nil {
		return nil, &QueryEscapeError{Query: query, Err: err}
	}
	return hits, nil
}

func (idx *Index) search(ctx context.Context, match string, topK int, sessionID string, sourceIDs []string) ([]Hit, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT chunk_id, source_id, session_id, content, bm25(chunks) FROM chunks WHERE chunks MATCH ?`)
	args := []interface{}{match}

	if sessionID != "" {
		sb.WriteString(` AND session_id = ?`)
		args = append(args, sessionID)
	}
	if len(sourceIDs) > 0 {
		sb.WriteString(` AND source_id IN (?` + strings.Repeat(", ?", len(sourceIDs)-1) + `)`)
		for _, id := range sourceIDs {
			args = append(args, id)
		}
	}

	// bm25() returns lower-is-better values.
	sb.WriteString(` ORDER BY bm25(chunks) LIMIT ?`)
	args = append(args, topK)

	rows, err := idx.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &hit.SourceID, &hit.SessionID, &hit.Content, &rank); err != nil {
			return nil, fmt.Errorf("sparse: scanning hit: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// buildMatchExpression turns free text into an FTS5 expression of quoted
// tokens joined with OR. Quoting each token neutralizes FTS5 operators and
// punctuation in user queries.
func buildMatchExpression(query string) string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, token := range tokens {
		quoted[i] = `"` + token + `"`
	}
	return strings.Join(quoted, " OR ")
}

func quoteLiteral(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// Close closes the underlying database.
func (idx *Index) Close() error {
	return idx.db.Close()
}
