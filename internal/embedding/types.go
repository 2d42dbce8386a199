// Package embedding provides the client for the Jina embedding API. Each
// embedded item yields both a single dense vector (used for ANN search) and
// a multi-vector token-level representation (used for MaxSim reranking).
// The client owns rate limiting, bounded retry, and connection pooling; a
// separate BatchProcessor schedules bulk ingestion work on top of it.
package embedding

import "fmt"

// Task selects the embedding mode the client is constructed for.
// Queries are embedded from text; passages are embedded from the raw page
// document bytes.
type Task string

const (
	// TaskQuery embeds search queries from their text.
	TaskQuery Task = "retrieval.query"

	// TaskPassage embeds corpus passages from their raw document bytes.
	TaskPassage Task = "retrieval.passage"
)

// Item is one unit of content to embed. Exactly one of Text or Document is
// consumed, depending on the task the client was constructed for.
type Item struct {
	// ID is the caller-supplied identifier carried through to the result.
	ID string

	// Text is the query text (required for TaskQuery).
	Text string

	// Document is the raw page document, e.g. a single-page PDF
	// (required for TaskPassage). It is base64-encoded on the wire.
	Document []byte
}

// Result is the immutable output of embedding one item.
type Result struct {
	// ID is the identifier of the embedded item.
	ID string

	// SingleVector is the dense summary vector (fixed dimension,
	// 2048 for jina-embeddings-v4).
	SingleVector []float32

	// MultiVector is the variable-length sequence of token vectors.
	MultiVector [][]float32

	// Text is the source text for query embeddings; empty for passages.
	Text string

	// Model tags the result with the model and task that produced it.
	Model string
}

// Error is the typed error returned for all embedding failures: missing
// credentials, empty input, bad payloads, and transport or HTTP failures
// that survived the retry policy.
type Error struct {
	// Reason describes the failure.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding: %s: %v", e.Reason, e.Err)
	}
	return "embedding: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
