package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/retrieval"
)

// Retrieve tool defaults. The tool always reranks; the preview length
// keeps chunk text from flooding the model context.
const (
	retrieveTopKANN    = retrieval.DefaultTopKANN
	retrieveTopKRerank = retrieval.DefaultTopKRerank
	retrieveUseRerank  = true
	textPreviewLength  = 500
	retrieveToolName   = "retrieve_documents"
)

// Retriever is the slice of the retrieval service the tool needs.
type Retriever interface {
	RetrieveChunks(ctx context.Context, queries []string, opts retrieval.Options) ([]retrieval.QueryResult, error)
}

// RetrieveDocumentsTool performs semantic search over the ingested
// corpus through the two-stage retrieval pipeline and formats the
// matches as text for the model.
type RetrieveDocumentsTool struct {
	service Retriever
}

// NewRetrieveDocumentsTool constructs the tool over a retrieval service.
func NewRetrieveDocumentsTool(service Retriever) *RetrieveDocumentsTool {
	return &RetrieveDocumentsTool{service: service}
}

func (t *RetrieveDocumentsTool) Name() string { return retrieveToolName }

func (t *RetrieveDocumentsTool) Description() string {
	return "Retrieve relevant document chunks from the ingested corpus using semantic search. " +
		"This tool performs embedding-based retrieval over your document collection using a " +
		"two-stage pipeline: fast ANN (Approximate Nearest Neighbor) search to find candidates, " +
		"then MaxSim reranking for higher precision.\n\n" +
		"Returns formatted results with:\n" +
		"- Document names (e.g., 'document__1.pdf')\n" +
		"- Content previews (first 500 characters of chunk text)\n" +
		"- Relevance scores (higher is better, typically 0.0 to 5.0+)\n\n" +
		"Use this tool when you need to find information from documents " +
		"that have been ingested into the system."
}

func (t *RetrieveDocumentsTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
				"description": "The search query to find semantically similar documents. " +
					"This is the only parameter used.",
			},
		},
		"required": []string{"query"},
	}
}

// Execute runs the pipeline for a single query and formats the chunks.
func (t *RetrieveDocumentsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", fmt.Errorf("query argument is required")
	}

	results, err := t.service.RetrieveChunks(ctx, []string{query}, retrieval.Options{
		TopKANN:      retrieveTopKANN,
		TopKRerank:   retrieveTopKRerank,
		UseReranking: retrieveUseRerank,
	})
	if err != nil {
		logging.FromContext(ctx).Error("document retrieval failed", "query", query, "error", err)
		return "", err
	}

	if len(results) == 0 || len(results[0].Chunks) == 0 {
		return fmt.Sprintf("No results found for query: %s", query), nil
	}
	return formatChunks(query, results[0].Chunks), nil
}

// formatChunks renders retrieval matches as the text block handed back
// to the model.
func formatChunks(query string, chunks []retrieval.Chunk) string {
	searchType := "ANN-only"
	if retrieveUseRerank {
		searchType = "reranked"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results (%s) for query: %s\n", len(chunks), searchType, query)
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "\n\nResult %d (relevance score: %.4f):", i+1, chunk.Score)
		if chunk.Name != "" {
			fmt.Fprintf(&b, "\n  Document: %s", chunk.Name)
		}
		if chunk.Text != "" {
			fmt.Fprintf(&b, "\n  Content: %s", preview(chunk.Text))
		}
	}
	return b.String()
}

// preview truncates chunk text for the model context, backing up to a
// rune boundary so multibyte characters are never split.
func preview(text string) string {
	if len(text) <= textPreviewLength {
		return text
	}
	cut := textPreviewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
