// Package retrieval implements the two-stage semantic retrieval pipeline:
// a batched approximate-nearest-neighbor search over single dense vectors
// followed by optional late-interaction (MaxSim) reranking over token-level
// multi-vectors. The Service composes the embedding client with both
// stages into one call from query text to ranked chunks.
package retrieval

import "fmt"

// Result is one ranked retrieval hit for a query. Results are produced
// fresh per query and never persisted.
type Result struct {
	// ChunkID is the unique identifier of the retrieved chunk.
	ChunkID string

	// Score is the relevance score, higher is better. ANN results carry
	// cosine similarity; reranked results carry the MaxSim score, which
	// has no fixed range and is only comparable within one query.
	Score float64

	// Metadata is the opaque key-value bag carried from the vector store
	// payload (chunk name, document id, stored text, and filter fields).
	Metadata map[string]string
}

// Chunk is one formatted pipeline output entry for a query.
type Chunk struct {
	// ChunkID is the unique identifier of the chunk.
	ChunkID string `json:"chunk_id"`

	// Name is the display name of the chunk (e.g. "report__3.pdf").
	Name string `json:"chunk_name"`

	// Score is the relevance score from the final ranking stage.
	Score float64 `json:"score"`

	// Text is the chunk text carried from storage metadata, possibly empty.
	Text string `json:"chunk_text"`
}

// QueryResult groups the ranked chunks for one input query.
type QueryResult struct {
	// Query is the original query string.
	Query string `json:"query"`

	// Chunks is the ranked chunk list, possibly empty.
	Chunks []Chunk `json:"chunks"`
}

// Error is the typed error returned for retrieval failures: empty query
// sets, index failures, and reranking failures.
type Error struct {
	// Reason describes the failure.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval: %s: %v", e.Reason, e.Err)
	}
	return "retrieval: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
