package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/Jamessukanto/rag-multimodal/internal/docstore"
	"github.com/Jamessukanto/rag-multimodal/internal/embedding"
	"github.com/Jamessukanto/rag-multimodal/internal/filestore"
	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// memSingleStore records Add calls in memory.
type memSingleStore struct {
	vectors  map[string][]float32
	metadata map[string]map[string]string
	deleted  []string
}

func newMemSingleStore() *memSingleStore {
	return &memSingleStore{
		vectors:  make(map[string][]float32),
		metadata: make(map[string]map[string]string),
	}
}

func (m *memSingleStore) Add(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	m.vectors[id] = vector
	m.metadata[id] = metadata
	return nil
}

func (m *memSingleStore) Query(context.Context, [][]float32, int, map[string]string) ([][]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memSingleStore) Delete(_ context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *memSingleStore) Close() error { return nil }

// memMultiStore records Add calls in memory.
type memMultiStore struct {
	vectors map[string][][]float32
	deleted []string
}

func newMemMultiStore() *memMultiStore {
	return &memMultiStore{vectors: make(map[string][][]float32)}
}

func (m *memMultiStore) Add(_ context.Context, id string, vectors [][]float32) error {
	m.vectors[id] = vectors
	return nil
}

func (m *memMultiStore) Get(_ context.Context, id string) ([][]float32, error) {
	return m.vectors[id], nil
}

func (m *memMultiStore) BatchGet(_ context.Context, ids []string) (map[string][][]float32, error) {
	out := make(map[string][][]float32)
	for _, id := range ids {
		if v, ok := m.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *memMultiStore) Delete(_ context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *memMultiStore) Close() error { return nil }

// passageEmbedder returns deterministic embeddings, or fails.
type passageEmbedder struct {
	err   error
	calls int
}

func (p *passageEmbedder) Embed(_ context.Context, items []embedding.Item) ([]embedding.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]embedding.Result, len(items))
	for i, it := range items {
		out[i] = embedding.Result{
			ID:           it.ID,
			SingleVector: []float32{1, 0},
			MultiVector:  [][]float32{{1, 0}, {0, 1}},
		}
	}
	return out, nil
}

type testHarness struct {
	svc      *Service
	docs     *docstore.Store
	single   *memSingleStore
	multi    *memMultiStore
	embedder *passageEmbedder
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	docs, err := docstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open docstore: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	files, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open filestore: %v", err)
	}
	chunks, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}

	h := &testHarness{
		docs:     docs,
		single:   newMemSingleStore(),
		multi:    newMemMultiStore(),
		embedder: &passageEmbedder{},
	}
	h.svc, err = NewService(docs, files, chunks, h.embedder, h.single, h.multi)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return h
}

func registerTwoPageDoc(t *testing.T, h *testHarness) string {
	t.Helper()
	docID, err := h.svc.RegisterDocument(context.Background(), "paper.pdf", []byte("whole pdf"), []PageChunk{
		{Payload: []byte("page 1 pdf"), Text: "introduction text"},
		{Payload: []byte("page 2 pdf"), Text: "methods text"},
	}, DocumentMeta{Authors: "Doe"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return docID
}

func Test_RegisterDocument_CreatesMetadata(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	docID := registerTwoPageDoc(t, h)

	doc, err := h.docs.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc == nil || doc.Status != docstore.StatusUploaded {
		t.Fatalf("document not registered as uploaded: %+v", doc)
	}
	if doc.NumChunks != 2 {
		t.Errorf("num chunks = %d, want 2", doc.NumChunks)
	}

	chunks, err := h.docs.ChunksByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	names := map[string]bool{}
	for _, c := range chunks {
		names[c.Name] = true
	}
	if !names["paper__1.pdf"] || !names["paper__2.pdf"] {
		t.Errorf("chunk names wrong: %v", names)
	}
}

func Test_RegisterDocument_RequiresPages(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if _, err := h.svc.RegisterDocument(context.Background(), "empty.pdf", []byte("x"), nil, DocumentMeta{}); err == nil {
		t.Error("want error for document with no pages")
	}
}

func Test_IngestDocument_IndexesEveryPage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	docID := registerTwoPageDoc(t, h)

	n, err := h.svc.IngestDocument(ctx, docID)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 {
		t.Errorf("chunks processed = %d, want 2", n)
	}
	if len(h.single.vectors) != 2 || len(h.multi.vectors) != 2 {
		t.Errorf("vector stores not populated: %d single, %d multi", len(h.single.vectors), len(h.multi.vectors))
	}
	for id, md := range h.single.metadata {
		if md["doc_id"] != docID || md["doc_name"] != "paper.pdf" {
			t.Errorf("metadata for %s wrong: %v", id, md)
		}
		if md["chunk_text"] == "" {
			t.Errorf("page text missing from metadata for %s", id)
		}
	}

	doc, _ := h.docs.GetDocument(ctx, docID)
	if doc.Status != docstore.StatusProcessed {
		t.Errorf("status = %q, want processed", doc.Status)
	}
}

func Test_IngestDocument_UnknownDocument(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if _, err := h.svc.IngestDocument(context.Background(), "missing"); err == nil {
		t.Error("want error for unknown document")
	}
}

func Test_IngestUnprocessed_MarksFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	docID := registerTwoPageDoc(t, h)
	h.embedder.err = errors.New("api down")

	result, err := h.svc.IngestUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ingest unprocessed: %v", err)
	}
	if result.DocumentsFailed != 1 || result.DocumentsProcessed != 0 {
		t.Errorf("result wrong: %+v", result)
	}
	if _, ok := result.FailedDocuments[docID]; !ok {
		t.Errorf("failed document not reported: %+v", result.FailedDocuments)
	}

	doc, _ := h.docs.GetDocument(ctx, docID)
	if doc.Status != docstore.StatusError {
		t.Errorf("status = %q, want error", doc.Status)
	}

	// A later run picks the failed document up again.
	h.embedder.err = nil
	result, err = h.svc.IngestUnprocessed(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.DocumentsProcessed != 1 || result.ChunksProcessed != 2 {
		t.Errorf("retry result wrong: %+v", result)
	}
}

func Test_IngestUnprocessed_SkipsProcessed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	registerTwoPageDoc(t, h)

	if _, err := h.svc.IngestUnprocessed(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := h.embedder.calls

	result, err := h.svc.IngestUnprocessed(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.DocumentsProcessed != 0 {
		t.Errorf("processed documents must not be re-ingested: %+v", result)
	}
	if h.embedder.calls != callsAfterFirst {
		t.Error("embedder called for an already processed document")
	}
}

func Test_DeleteDocument_RemovesEverywhere(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	docID := registerTwoPageDoc(t, h)
	if _, err := h.svc.IngestDocument(ctx, docID); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := h.svc.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	doc, err := h.docs.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc != nil {
		t.Error("document metadata survived delete")
	}
	if len(h.single.deleted) != 2 || len(h.multi.deleted) != 2 {
		t.Errorf("vector stores not cleaned: %v %v", h.single.deleted, h.multi.deleted)
	}
}
