package retrieval

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Jamessukanto/rag-multimodal/internal/embedding"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// Default candidate pool sizes for the two pipeline stages.
const (
	// DefaultTopKANN is the ANN candidate pool size when the caller
	// passes zero.
	DefaultTopKANN = 10

	// DefaultTopKRerank is the final result count after reranking when
	// the caller passes zero.
	DefaultTopKRerank = 5
)

// QueryEmbedder is the narrow slice of the embedding client the service
// needs. The production implementation is a *embedding.Client constructed
// with TaskQuery.
type QueryEmbedder interface {
	Embed(ctx context.Context, items []embedding.Item) ([]embedding.Result, error)
}

// Options tunes one RetrieveChunks call.
type Options struct {
	// TopKANN is the ANN candidate pool size per query
	// (default: DefaultTopKANN). It should be >= TopKRerank for
	// reranking to be meaningful; the pipeline does not enforce this.
	TopKANN int

	// TopKRerank is the final result count per query after reranking
	// (default: DefaultTopKRerank). Ignored when UseReranking is false.
	TopKRerank int

	// Filter is an opaque metadata predicate passed through to the ANN
	// index verbatim. Nil or empty means no filtering.
	Filter map[string]string

	// UseReranking enables the MaxSim reranking stage.
	UseReranking bool
}

// Service composes the embedding client, ANN retriever, and reranker into
// the full retrieval pipeline: query text in, ranked chunks out.
type Service struct {
	// embedder converts query text into single- and multi-vector form.
	embedder QueryEmbedder

	// ann performs the batched candidate search.
	ann *ANNRetriever

	// reranker performs the late-interaction second stage.
	reranker *Reranker

	// defaultTopKANN and defaultTopKRerank back Options fields left at
	// zero. They default to the package constants.
	defaultTopKANN    int
	defaultTopKRerank int
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithDefaultTopK overrides the pool sizes used when a RetrieveChunks
// call leaves Options.TopKANN or Options.TopKRerank at zero. Non-positive
// values keep the package defaults.
func WithDefaultTopK(ann, rerank int) ServiceOption {
	return func(s *Service) {
		if ann > 0 {
			s.defaultTopKANN = ann
		}
		if rerank > 0 {
			s.defaultTopKRerank = rerank
		}
	}
}

// NewService constructs a Service from its three collaborators.
func NewService(embedder QueryEmbedder, single vectorstore.SingleVectorStore, multi vectorstore.MultiVectorStore, opts ...ServiceOption) (*Service, error) {
	if embedder == nil {
		return nil, &Error{Reason: "embedder must not be nil"}
	}
	if single == nil {
		return nil, &Error{Reason: "single-vector store must not be nil"}
	}
	if multi == nil {
		return nil, &Error{Reason: "multi-vector store must not be nil"}
	}
	s := &Service{
		embedder:          embedder,
		ann:               NewANNRetriever(single),
		reranker:          NewReranker(multi),
		defaultTopKANN:    DefaultTopKANN,
		defaultTopKRerank: DefaultTopKRerank,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RetrieveChunks runs the full pipeline for all queries: one batched embed
// call, one batched ANN search, then per-query optional reranking and
// truncation. The output has exactly one entry per input query, in input
// order. A query whose ANN search returns no candidates yields an empty
// chunk list for that query, not an error.
func (s *Service) RetrieveChunks(ctx context.Context, queries []string, opts Options) ([]QueryResult, error) {
	if len(queries) == 0 {
		return nil, &Error{Reason: "queries list must not be empty"}
	}

	topKANN := opts.TopKANN
	if topKANN <= 0 {
		topKANN = s.defaultTopKANN
	}
	topKRerank := opts.TopKRerank
	if topKRerank <= 0 {
		topKRerank = s.defaultTopKRerank
	}

	items := make([]embedding.Item, len(queries))
	for i, q := range queries {
		items[i] = embedding.Item{ID: queryItemID(i), Text: q}
	}
	embedded, err := s.embedder.Embed(ctx, items)
	if err != nil {
		return nil, &Error{Reason: "query embedding failed", Err: err}
	}
	if len(embedded) != len(queries) {
		return nil, &Error{Reason: "embedder returned wrong result count"}
	}

	queryVectors := make([][]float32, len(embedded))
	for i, e := range embedded {
		queryVectors[i] = e.SingleVector
	}

	allCandidates, err := s.ann.Retrieve(ctx, queryVectors, topKANN, opts.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, len(queries))
	for i, query := range queries {
		var candidates []Result
		if i < len(allCandidates) {
			candidates = allCandidates[i]
		}

		if len(candidates) == 0 {
			results[i] = QueryResult{Query: query, Chunks: []Chunk{}}
			continue
		}

		var final []Result
		if opts.UseReranking {
			queryMultiVector := embedded[i].MultiVector
			if len(queryMultiVector) == 0 {
				// Degrade to treating the dense vector as a single token.
				queryMultiVector = [][]float32{queryVectors[i]}
			}
			reranked, err := s.reranker.Rerank(ctx, queryMultiVector, candidates)
			if err != nil {
				return nil, err
			}
			final = truncate(reranked, topKRerank)
		} else {
			final = truncate(candidates, topKANN)
		}

		chunks := make([]Chunk, len(final))
		for j, r := range final {
			chunks[j] = Chunk{
				ChunkID: r.ChunkID,
				Name:    r.Metadata["chunk_name"],
				Score:   r.Score,
				Text:    r.Metadata["chunk_text"],
			}
		}
		results[i] = QueryResult{Query: query, Chunks: chunks}
	}

	logging.FromContext(ctx).Debug("retrieval pipeline completed",
		slog.Int("queries", len(queries)),
		slog.Bool("reranked", opts.UseReranking),
	)

	return results, nil
}

// truncate returns at most n leading results.
func truncate(results []Result, n int) []Result {
	if len(results) <= n {
		return results
	}
	return results[:n]
}

// queryItemID builds a stable per-call identifier for query items.
func queryItemID(i int) string {
	return "query-" + strconv.Itoa(i)
}
