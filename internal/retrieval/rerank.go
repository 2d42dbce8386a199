package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/similarity"
	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// Reranker re-orders an ANN candidate set by late-interaction MaxSim score
// against the query's multi-vector. Multi-vectors for the whole candidate
// set are fetched in one batched lookup.
type Reranker struct {
	// store holds the token-level vectors per chunk.
	store vectorstore.MultiVectorStore
}

// NewReranker constructs a Reranker over the given multi-vector store.
func NewReranker(store vectorstore.MultiVectorStore) *Reranker {
	return &Reranker{store: store}
}

// Rerank scores every candidate with MaxSim against the query multi-vector
// and returns them sorted by descending score; ties keep their ANN order
// (the sort is stable). A candidate whose multi-vector is missing from the
// store is passed through unscored after the scored group, keeping its
// original ANN score and relative order — a deliberate degraded fallback,
// not silent data loss.
func (r *Reranker) Rerank(ctx context.Context, queryMultiVector [][]float32, candidates []Result) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	chunkIDs := make([]string, len(candidates))
	for i, c := range candidates {
		chunkIDs[i] = c.ChunkID
	}

	multiVectors, err := r.store.BatchGet(ctx, chunkIDs)
	if err != nil {
		return nil, &Error{Reason: "multi-vector lookup failed", Err: err}
	}

	scored := make([]Result, 0, len(candidates))
	var unscored []Result
	for _, candidate := range candidates {
		chunkVectors, ok := multiVectors[candidate.ChunkID]
		if !ok || len(chunkVectors) == 0 {
			logging.FromContext(ctx).Warn("candidate has no multi-vector, keeping ANN score",
				slog.String("chunk_id", candidate.ChunkID),
			)
			unscored = append(unscored, candidate)
			continue
		}
		scored = append(scored, Result{
			ChunkID:  candidate.ChunkID,
			Score:    similarity.MaxSim(queryMultiVector, chunkVectors),
			Metadata: candidate.Metadata,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	return append(scored, unscored...), nil
}
