package retrieval

import (
	"context"

	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// ANNRetriever is the thin orchestration layer over the single-vector ANN
// store. It embeds nothing itself — callers hand it pre-computed query
// vectors and it issues one batched index query for all of them.
type ANNRetriever struct {
	// store is the single-vector index backing the candidate search.
	store vectorstore.SingleVectorStore
}

// NewANNRetriever constructs an ANNRetriever over the given store.
func NewANNRetriever(store vectorstore.SingleVectorStore) *ANNRetriever {
	return &ANNRetriever{store: store}
}

// Retrieve returns one candidate set per query vector, in query order, from
// a single batched index call. The filter is passed through verbatim; an
// empty filter is normalized to no filter. A query with no matches yields
// an empty candidate set, not an error.
func (r *ANNRetriever) Retrieve(ctx context.Context, queryVectors [][]float32, topK int, filter map[string]string) ([][]Result, error) {
	if len(queryVectors) == 0 {
		return nil, &Error{Reason: "query vectors list must not be empty"}
	}
	if len(filter) == 0 {
		filter = nil
	}

	hits, err := r.store.Query(ctx, queryVectors, topK, filter)
	if err != nil {
		return nil, &Error{Reason: "ann search failed", Err: err}
	}

	candidates := make([][]Result, len(queryVectors))
	for i := range candidates {
		candidates[i] = []Result{}
	}
	for i, queryHits := range hits {
		if i >= len(candidates) {
			break
		}
		set := make([]Result, 0, len(queryHits))
		for _, hit := range queryHits {
			set = append(set, Result{
				ChunkID:  hit.ChunkID,
				Score:    float64(hit.Score),
				Metadata: hit.Metadata,
			})
		}
		candidates[i] = set
	}

	return candidates, nil
}
