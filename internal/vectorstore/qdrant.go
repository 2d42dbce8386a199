package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for the Qdrant ANN store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the single vectors stored in
	// this collection (e.g. 2048 for jina-embeddings-v4).
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements SingleVectorStore backed by a Qdrant instance.
// Qdrant scores cosine-distance collections as similarity (higher-better),
// so Query results need no score conversion.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Add stores one vector with its metadata payload under the given chunk id.
func (s *QdrantStore) Add(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error {
	payload := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		payload[k] = v
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(chunkID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %s failed: %w", chunkID, err)
	}

	return nil
}

// Query runs one batched similarity search for all query vectors and returns
// one ranked result list per query vector, preserving query order.
func (s *QdrantStore) Query(ctx context.Context, queryVectors [][]float32, topK int, filter map[string]string) ([][]SearchResult, error) {
	limit := uint64(topK)
	points := make([]*qdrant.QueryPoints, 0, len(queryVectors))
	for _, vec := range queryVectors {
		points = append(points, &qdrant.QueryPoints{
			CollectionName: s.cfg.Collection,
			Query:          qdrant.NewQuery(vec...),
			Filter:         buildFilter(filter),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
	}

	batches, err := s.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
		CollectionName: s.cfg.Collection,
		QueryPoints:    points,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: batch query failed: %w", err)
	}

	results := make([][]SearchResult, len(queryVectors))
	for i := range results {
		results[i] = []SearchResult{}
	}
	for i, batch := range batches {
		if i >= len(results) || batch == nil {
			continue
		}
		hits := make([]SearchResult, 0, len(batch.Result))
		for _, point := range batch.Result {
			hit := SearchResult{
				ChunkID:  point.Id.GetUuid(),
				Score:    point.Score,
				Metadata: make(map[string]string, len(point.Payload)),
			}
			for k, v := range point.Payload {
				hit.Metadata[k] = v.GetStringValue()
			}
			hits = append(hits, hit)
		}
		results[i] = hits
	}

	return results, nil
}

// buildFilter converts a flat metadata filter into a Qdrant must-match
// filter. A nil or empty map yields nil (no filtering).
func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for field, keyword := range filter {
		conditions = append(conditions, qdrant.NewMatch(field, keyword))
	}
	return &qdrant.Filter{Must: conditions}
}

// Delete removes the vectors for the given chunk ids.
func (s *QdrantStore) Delete(ctx context.Context, chunkIDs []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Ping probes the Qdrant instance using its native HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
