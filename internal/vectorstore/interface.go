// Package vectorstore defines the contracts for the two vector indexes
// behind the retrieval pipeline — a single-vector ANN store used for the
// candidate search and a multi-vector store used for late-interaction
// reranking — together with the Qdrant and SQLite implementations.
// Concrete backends satisfy these interfaces so the retrieval layer never
// depends on a specific index.
package vectorstore

import "context"

// SearchResult is a single ranked hit returned by an ANN query.
type SearchResult struct {
	// ChunkID is the unique identifier of the matched chunk.
	ChunkID string

	// Score is the similarity score (higher is better). Qdrant returns
	// cosine similarity directly; other backends must follow the same
	// higher-is-better convention.
	Score float32

	// Metadata holds the opaque key-value payload stored with the vector
	// (chunk name, document id, and other filterable fields).
	Metadata map[string]string
}

// SingleVectorStore is the ANN index over one dense vector per chunk.
// Implementations must be safe to call from multiple goroutines.
type SingleVectorStore interface {
	// Add stores one vector with its metadata payload under the given id.
	Add(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error

	// Query runs one batched nearest-neighbor search for all query vectors
	// and returns one ranked result list per query vector, in query order.
	// A nil or empty filter means no filtering.
	Query(ctx context.Context, queryVectors [][]float32, topK int, filter map[string]string) ([][]SearchResult, error)

	// Delete removes the vectors for the given chunk ids.
	Delete(ctx context.Context, chunkIDs []string) error

	// Close releases any resources held by the store.
	Close() error
}

// MultiVectorStore persists the token-level vectors per chunk used by the
// MaxSim reranker. Implementations must be safe to call from multiple
// goroutines.
type MultiVectorStore interface {
	// Add stores the token vectors for one chunk.
	Add(ctx context.Context, chunkID string, vectors [][]float32) error

	// Get returns the token vectors for one chunk, or (nil, nil) if the
	// chunk has no stored multi-vector.
	Get(ctx context.Context, chunkID string) ([][]float32, error)

	// BatchGet returns the token vectors for all requested chunks in one
	// lookup. Chunks with no stored multi-vector are absent from the map.
	BatchGet(ctx context.Context, chunkIDs []string) (map[string][][]float32, error)

	// Delete removes the token vectors for the given chunk ids.
	Delete(ctx context.Context, chunkIDs []string) error

	// Close releases any resources held by the store.
	Close() error
}
