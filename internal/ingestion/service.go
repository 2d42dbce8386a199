package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Jamessukanto/rag-multimodal/internal/docstore"
	"github.com/Jamessukanto/rag-multimodal/internal/embedding"
	"github.com/Jamessukanto/rag-multimodal/internal/filestore"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// PageChunk is one page of a document at registration time. Payload is
// the page's PDF bytes; Text is the page's extracted text, kept in the
// vector store metadata so retrieval can surface previews.
type PageChunk struct {
	Payload []byte
	Text    string
}

// DocumentMeta carries the optional descriptive fields of a document.
type DocumentMeta struct {
	Authors  string
	Abstract string
}

// Result summarizes one IngestUnprocessed run.
type Result struct {
	DocumentsProcessed int
	ChunksProcessed    int
	DocumentsFailed    int
	FailedDocuments    map[string]string
}

// ChunkEmbedder is the slice of the embedding client the service needs.
type ChunkEmbedder interface {
	Embed(ctx context.Context, items []embedding.Item) ([]embedding.Result, error)
}

// Service orchestrates the document ingestion flow: register → split
// pages into the chunk store → embed → index. Documents are embedded
// page by page with both a dense vector and a multi-vector per page.
type Service struct {
	docs     *docstore.Store
	files    *filestore.Store
	chunks   *filestore.Store
	embedder ChunkEmbedder
	single   vectorstore.SingleVectorStore
	multi    vectorstore.MultiVectorStore
	batch    *embedding.BatchProcessor
}

// NewService constructs an ingestion Service. All dependencies are
// required.
func NewService(
	docs *docstore.Store,
	files *filestore.Store,
	chunks *filestore.Store,
	embedder ChunkEmbedder,
	single vectorstore.SingleVectorStore,
	multi vectorstore.MultiVectorStore,
) (*Service, error) {
	if docs == nil || files == nil || chunks == nil {
		return nil, fmt.Errorf("ingestion: document, file, and chunk stores are required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder is required")
	}
	if single == nil || multi == nil {
		return nil, fmt.Errorf("ingestion: both vector stores are required")
	}
	return &Service{
		docs:     docs,
		files:    files,
		chunks:   chunks,
		embedder: embedder,
		single:   single,
		multi:    multi,
		batch:    &embedding.BatchProcessor{},
	}, nil
}

// RegisterDocument stores a document and its page chunks and records
// their metadata with status uploaded. The returned id identifies the
// document for later ingestion. Embedding happens separately in
// [Service.IngestDocument].
func (s *Service) RegisterDocument(ctx context.Context, name string, content []byte, pages []PageChunk, meta DocumentMeta) (string, error) {
	if name == "" {
		return "", fmt.Errorf("ingestion: document name is required")
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("ingestion: document %s has no pages", name)
	}

	docID := uuid.NewString()
	path, err := s.files.Save(docID, content)
	if err != nil {
		return "", fmt.Errorf("ingestion: store document %s: %w", name, err)
	}

	err = s.docs.UpsertDocument(ctx, docstore.Document{
		ID:       docID,
		Name:     name,
		Size:     int64(len(content)),
		Status:   docstore.StatusUploaded,
		Authors:  meta.Authors,
		Abstract: meta.Abstract,
		Path:     path,
	})
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(name, ".pdf")
	for i, page := range pages {
		pageNum := i + 1
		chunkID := chunkID(docID, pageNum)
		chunkName := fmt.Sprintf("%s__%d.pdf", base, pageNum)

		chunkPath, err := s.chunks.Save(chunkID, page.Payload)
		if err != nil {
			return "", fmt.Errorf("ingestion: store page %d of %s: %w", pageNum, name, err)
		}
		if page.Text != "" {
			if err := s.saveChunkText(chunkID, page.Text); err != nil {
				return "", err
			}
		}

		err = s.docs.UpsertChunk(ctx, docstore.Chunk{
			ID:     chunkID,
			DocID:  docID,
			Name:   chunkName,
			Path:   chunkPath,
			Source: docstore.SourcePDF,
			Level:  docstore.LevelPage,
		})
		if err != nil {
			return "", err
		}
	}

	logging.FromContext(ctx).Info("registered document",
		"doc_id", docID, "name", name, "pages", len(pages))
	return docID, nil
}

// IngestUnprocessed embeds and indexes every document with status
// uploaded or error. A failing document is marked error and skipped so
// the rest of the batch still processes.
func (s *Service) IngestUnprocessed(ctx context.Context) (Result, error) {
	result := Result{FailedDocuments: make(map[string]string)}

	docs, err := s.docs.ListDocuments(ctx, docstore.StatusUploaded, docstore.StatusError)
	if err != nil {
		return result, err
	}

	log := logging.FromContext(ctx)
	log.Info("found unprocessed documents", "count", len(docs))

	for _, doc := range docs {
		n, err := s.IngestDocument(ctx, doc.ID)
		if err != nil {
			log.Error("document ingestion failed", "doc_id", doc.ID, "error", err)
			if statusErr := s.docs.UpdateStatus(ctx, doc.ID, docstore.StatusError); statusErr != nil {
				log.Error("marking document failed", "doc_id", doc.ID, "error", statusErr)
			}
			result.DocumentsFailed++
			result.FailedDocuments[doc.ID] = err.Error()
			continue
		}
		result.DocumentsProcessed++
		result.ChunksProcessed += n
	}
	return result, nil
}

// IngestDocument embeds and indexes a single registered document,
// returning the number of chunks processed.
func (s *Service) IngestDocument(ctx context.Context, docID string) (int, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, fmt.Errorf("ingestion: document %s not found", docID)
	}

	chunks, err := s.docs.ChunksByDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("ingestion: document %s has no chunks", docID)
	}

	if err := s.docs.UpdateStatus(ctx, docID, docstore.StatusProcessing); err != nil {
		return 0, err
	}

	items := make([]embedding.Item, 0, len(chunks))
	for _, chunk := range chunks {
		payload, err := s.chunks.Get(chunk.ID)
		if err != nil {
			return 0, err
		}
		if payload == nil {
			return 0, fmt.Errorf("ingestion: page file missing for chunk %s", chunk.ID)
		}
		items = append(items, embedding.Item{ID: chunk.ID, Document: payload})
	}

	results, err := s.batch.ProcessInBatches(ctx, items, s.embedder.Embed)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embedding document %s: %w", docID, err)
	}

	for i, res := range results {
		chunk := chunks[i]
		metadata := map[string]string{
			"doc_id":       docID,
			"doc_name":     doc.Name,
			"chunk_name":   chunk.Name,
			"chunk_source": chunk.Source,
			"chunk_level":  chunk.Level,
		}
		if text, err := s.chunkText(chunk.ID); err == nil && text != "" {
			metadata["chunk_text"] = text
		}

		if err := s.single.Add(ctx, chunk.ID, res.SingleVector, metadata); err != nil {
			return 0, fmt.Errorf("ingestion: indexing chunk %s: %w", chunk.ID, err)
		}
		if err := s.multi.Add(ctx, chunk.ID, res.MultiVector); err != nil {
			return 0, fmt.Errorf("ingestion: storing multi-vector for chunk %s: %w", chunk.ID, err)
		}
	}

	if err := s.docs.UpdateStatus(ctx, docID, docstore.StatusProcessed); err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Info("ingested document", "doc_id", docID, "chunks", len(chunks))
	return len(chunks), nil
}

// DeleteDocument removes a document everywhere: metadata, raw files,
// page files, and both vector stores.
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	chunks, err := s.docs.ChunksByDocument(ctx, docID)
	if err != nil {
		return err
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIDs = append(chunkIDs, chunk.ID)
		if err := s.chunks.Delete(chunk.ID); err != nil {
			return err
		}
		_ = s.chunks.Delete(chunk.ID + textSuffix)
	}

	if len(chunkIDs) > 0 {
		if err := s.single.Delete(ctx, chunkIDs); err != nil {
			return err
		}
		if err := s.multi.Delete(ctx, chunkIDs); err != nil {
			return err
		}
	}
	if err := s.files.Delete(docID); err != nil {
		return err
	}
	return s.docs.DeleteDocument(ctx, docID)
}

// textSuffix distinguishes the sidecar text file of a page chunk from
// its PDF payload in the chunk store.
const textSuffix = "-text"

func (s *Service) saveChunkText(chunkID, text string) error {
	if _, err := s.chunks.Save(chunkID+textSuffix, []byte(text)); err != nil {
		return fmt.Errorf("ingestion: store page text for chunk %s: %w", chunkID, err)
	}
	return nil
}

func (s *Service) chunkText(chunkID string) (string, error) {
	content, err := s.chunks.Get(chunkID + textSuffix)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// chunkID derives a stable chunk identifier from the document id and
// page number. It is a name-based UUID because the ANN store requires
// UUID point ids.
func chunkID(docID string, page int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", docID, page))).String()
}
