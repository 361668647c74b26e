// Package search answers semantic queries over stored captures by embedding
// the query text and ranking captures by cosine similarity.
package search

import (
	"context"
	"fmt"

	"github.com/rovda/clipd/internal/storage"
)

// DefaultLimit is the result count used when the caller does not specify one.
const DefaultLimit = 10

// maxLimit caps a single query; the brute-force scan makes huge result sets
// pointless anyway.
const maxLimit = 50

// QueryEmbedder turns query text into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore ranks stored captures against a query vector.
type VectorStore interface {
	SimilarCaptures(vector []float32, topK int) ([]storage.ScoredCapture, error)
}

// Searcher runs semantic capture search.
type Searcher struct {
	embedder QueryEmbedder
	store    VectorStore
}

// New creates a Searcher.
func New(embedder QueryEmbedder, store VectorStore) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search embeds query and returns the top limit captures by similarity,
// highest first. Captures without an embedding never appear in results.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]storage.ScoredCapture, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.store.SimilarCaptures(vector, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking captures: %w", err)
	}
	return results, nil
}
