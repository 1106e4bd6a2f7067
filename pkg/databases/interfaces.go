// Package databases provides the dense vector store providers used by the
// retrieval fusion engine: Qdrant for deployments with a running server and
// chromem-go for embedded, zero-infrastructure setups.
package databases

import (
	"context"
	"fmt"
)

// SearchResult is a scored dense hit.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]interface{}
}

// Provider is a dense vector store.
type Provider interface {
	// Upsert inserts or replaces a vector with its payload.
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]interface{}) error

	// Search returns the topK nearest vectors by similarity, descending.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// SearchWithFilter restricts the search to points whose payload matches
	// every filter entry exactly. A nil or empty filter behaves like Search.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error)

	// Delete removes a vector by ID.
	Delete(ctx context.Context, collection, id string) error

	// Close releases the underlying connection.
	Close() error
}

// DatabaseError wraps vector store failures with the provider and operation.
type DatabaseError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("database %s: %s failed: %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("database %s: %s failed: %s", e.Provider, e.Operation, e.Message)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a DatabaseError.
func NewDatabaseError(provider, operation, message string, err error) *DatabaseError {
	return &DatabaseError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
