package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jamessukanto/rag-multimodal/internal/config"
	"github.com/Jamessukanto/rag-multimodal/internal/docstore"
	"github.com/Jamessukanto/rag-multimodal/internal/ingestion"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// NewIngestCmd constructs the `ragmm ingest` command group, which manages
// the document corpus: registering documents, running the embedding
// pipeline, listing, and deleting.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Manage and embed the document corpus",
		Long: `Register documents, embed them, and manage the corpus.

Documents are registered as pre-split page chunks: either a directory of
single-page PDFs (1.pdf, 2.pdf, ... with optional 1.txt sidecars carrying
extracted text) or a single file treated as one page. Registered documents
start in status "uploaded"; 'ingest run' embeds every document still in
"uploaded" or "error" and moves it to "processed".`,
	}

	cmd.AddCommand(
		newIngestAddCmd(),
		newIngestRunCmd(),
		newIngestListCmd(),
		newIngestDeleteCmd(),
	)

	return cmd
}

// newIngestAddCmd constructs `ragmm ingest add`, which registers one
// document without embedding it.
func newIngestAddCmd() *cobra.Command {
	var pagesDir string
	var authors string
	var abstract string

	cmd := &cobra.Command{
		Use:   "add [file]",
		Short: "Register a document for ingestion",
		Long: `Register a document and its page chunks with status "uploaded".

With --pages-dir, pages are read from <dir>/1.pdf, <dir>/2.pdf, ... in
order; a matching <n>.txt sidecar, when present, supplies the extracted
page text used for retrieval previews. Without --pages-dir the whole file
becomes a single page.

Examples:
  ragmm ingest add report.pdf --pages-dir report-pages/
  ragmm ingest add one-pager.pdf --authors "Doe, J." --abstract "..."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			cfg := config.FromEnv()
			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ingest add: %w", err)
			}
			defer closeStores()

			svc, err := buildIngestion(cfg, st)
			if err != nil {
				return fmt.Errorf("ingest add: %w", err)
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("ingest add: read %s: %w", args[0], err)
			}

			var pages []ingestion.PageChunk
			if pagesDir != "" {
				pages, err = readPages(pagesDir)
				if err != nil {
					return fmt.Errorf("ingest add: %w", err)
				}
			} else {
				pages = []ingestion.PageChunk{{Payload: content}}
			}

			docID, err := svc.RegisterDocument(ctx, filepath.Base(args[0]), content, pages,
				ingestion.DocumentMeta{Authors: authors, Abstract: abstract})
			if err != nil {
				return fmt.Errorf("ingest add: %w", err)
			}

			fmt.Printf("registered %s (%d pages) as %s\n", filepath.Base(args[0]), len(pages), docID)
			return nil
		},
	}

	cmd.Flags().StringVar(&pagesDir, "pages-dir", "", "Directory of single-page files: 1.pdf, 2.pdf, ... with optional <n>.txt sidecars")
	cmd.Flags().StringVar(&authors, "authors", "", "Document authors")
	cmd.Flags().StringVar(&abstract, "abstract", "", "Document abstract")

	return cmd
}

// readPages loads page files from dir in page order. It stops at the
// first missing <n>.pdf and requires at least one page.
func readPages(dir string) ([]ingestion.PageChunk, error) {
	var pages []ingestion.PageChunk
	for n := 1; ; n++ {
		payload, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.pdf", n)))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", n, err)
		}

		page := ingestion.PageChunk{Payload: payload}
		if text, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.txt", n))); err == nil {
			page.Text = string(text)
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages found in %s (expected 1.pdf, 2.pdf, ...)", dir)
	}
	return pages, nil
}

// newIngestRunCmd constructs `ragmm ingest run`, which embeds every
// registered document that is not yet processed.
func newIngestRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Embed all unprocessed documents",
		Long: `Embed every document in status "uploaded" or "error".

Each page is embedded as a passage (dense vector plus multi-vector) and
indexed in Qdrant and the local multi-vector store. Failures mark the
document "error" and the run continues with the rest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			cfg := config.FromEnv()
			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ingest run: %w", err)
			}
			defer closeStores()

			svc, err := buildIngestion(cfg, st)
			if err != nil {
				return fmt.Errorf("ingest run: %w", err)
			}

			result, err := svc.IngestUnprocessed(ctx)
			if err != nil {
				return fmt.Errorf("ingest run: %w", err)
			}

			fmt.Printf("processed %d documents (%d chunks), %d failed\n",
				result.DocumentsProcessed, result.ChunksProcessed, result.DocumentsFailed)
			for docID, reason := range result.FailedDocuments {
				log.Warn("document failed", slog.String("doc_id", docID), slog.String("reason", reason))
			}
			if result.DocumentsFailed > 0 {
				return fmt.Errorf("ingest run: %d documents failed", result.DocumentsFailed)
			}
			return nil
		},
	}
}

// newIngestListCmd constructs `ragmm ingest list`, which prints the
// registered documents and their statuses.
func newIngestListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			cfg := config.FromEnv()
			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ingest list: %w", err)
			}
			defer closeStores()

			var statuses []docstore.Status
			if status != "" {
				statuses = append(statuses, docstore.Status(status))
			}

			docs, err := st.docs.ListDocuments(ctx, statuses...)
			if err != nil {
				return fmt.Errorf("ingest list: %w", err)
			}

			if len(docs) == 0 {
				fmt.Println("no documents")
				return nil
			}
			for _, doc := range docs {
				fmt.Printf("%s  %-10s  %3d pages  %s\n", doc.ID, doc.Status, doc.NumChunks, doc.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (uploaded, processing, processed, error)")

	return cmd
}

// newIngestDeleteCmd constructs `ragmm ingest delete`, which removes a
// document and all its derived data.
func newIngestDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [doc-id]",
		Short: "Delete a document, its chunks, and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			cfg := config.FromEnv()
			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ingest delete: %w", err)
			}
			defer closeStores()

			svc, err := buildIngestion(cfg, st)
			if err != nil {
				return fmt.Errorf("ingest delete: %w", err)
			}

			if err := svc.DeleteDocument(ctx, args[0]); err != nil {
				return fmt.Errorf("ingest delete: %w", err)
			}

			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
