package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jamessukanto/rag-multimodal/internal/agent"
	"github.com/Jamessukanto/rag-multimodal/internal/config"
	"github.com/Jamessukanto/rag-multimodal/internal/docstore"
	"github.com/Jamessukanto/rag-multimodal/internal/embedding"
	"github.com/Jamessukanto/rag-multimodal/internal/filestore"
	"github.com/Jamessukanto/rag-multimodal/internal/ingestion"
	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/mcp"
	"github.com/Jamessukanto/rag-multimodal/internal/retrieval"
	"github.com/Jamessukanto/rag-multimodal/internal/server"
	"github.com/Jamessukanto/rag-multimodal/internal/tools"
	"github.com/Jamessukanto/rag-multimodal/internal/vectorstore"
)

// stores bundles every storage backend a command may need: document
// metadata, raw files, page chunks, and the two vector indexes.
type stores struct {
	docs   *docstore.Store
	files  *filestore.Store
	chunks *filestore.Store
	single *vectorstore.QdrantStore
	multi  *vectorstore.SQLiteMultiVectorStore
}

// openStores wires up all storage backends from config. The returned
// cleanup function closes them in reverse order and is safe to call
// exactly once.
func openStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	docs, err := docstore.Open(cfg.Storage.DocumentDB)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, docs.Close)

	files, err := filestore.Open(cfg.Storage.DocumentsDir)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	chunks, err := filestore.Open(cfg.Storage.ChunksDir)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	multi, err := vectorstore.OpenSQLiteMultiVectorStore(cfg.Storage.MultiVectorDB)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, multi.Close)

	single, err := vectorstore.NewQdrantStore(ctx, &vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		VectorSize: uint64(cfg.Qdrant.VectorSize),
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.TLS,
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
	}
	closers = append(closers, single.Close)

	return &stores{
		docs:   docs,
		files:  files,
		chunks: chunks,
		single: single,
		multi:  multi,
	}, closeAll, nil
}

// pingers returns the readiness probes for every remote or lockable
// storage backend.
func (s *stores) pingers() []server.Pinger {
	return []server.Pinger{
		server.PingerFunc{Label: "qdrant", Fn: s.single.Ping},
		server.PingerFunc{Label: "docstore", Fn: s.docs.Ping},
		server.PingerFunc{Label: "multivector", Fn: s.multi.Ping},
	}
}

// newEmbedder constructs a Jina embedding client for the given task from
// config.
func newEmbedder(cfg *config.Config, task embedding.Task) (*embedding.Client, error) {
	return embedding.NewClient(&embedding.Config{
		Task:        task,
		APIKey:      cfg.Embedding.APIKey,
		APIURL:      cfg.Embedding.APIURL,
		Model:       cfg.Embedding.Model,
		RateLimit:   cfg.Embedding.RateLimit,
		MaxAttempts: cfg.Embedding.MaxAttempts,
	})
}

// buildRetrieval constructs the two-stage retrieval pipeline over the
// given stores.
func buildRetrieval(cfg *config.Config, st *stores) (*retrieval.Service, error) {
	embedder, err := newEmbedder(cfg, embedding.TaskQuery)
	if err != nil {
		return nil, err
	}
	return retrieval.NewService(embedder, st.single, st.multi,
		retrieval.WithDefaultTopK(cfg.Retrieval.TopKANN, cfg.Retrieval.TopKRerank))
}

// buildIngestion constructs the ingestion service over the given stores.
func buildIngestion(cfg *config.Config, st *stores) (*ingestion.Service, error) {
	embedder, err := newEmbedder(cfg, embedding.TaskPassage)
	if err != nil {
		return nil, err
	}
	return ingestion.NewService(st.docs, st.files, st.chunks, embedder, st.single, st.multi)
}

// buildAgent constructs the tool registry and the orchestrator. The
// retrieval tool is always registered; MCP tools are added when a server
// command is configured. The returned cleanup closes the MCP session if
// one was opened.
func buildAgent(ctx context.Context, cfg *config.Config, retriever *retrieval.Service, log *slog.Logger) (*agent.Orchestrator, func(), error) {
	registry := tools.NewRegistry()
	registry.Register(ctx, tools.NewRetrieveDocumentsTool(retriever))

	cleanup := func() {}
	if cfg.MCP.ServerCommand != "" {
		client, err := mcp.Connect(ctx, "ragmm", cfg.MCP.ServerCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("mcp server %q: %w", cfg.MCP.ServerCommand, err)
		}
		cleanup = func() { _ = client.Close() }

		if err := registry.RegisterMCPTools(ctx, client, cfg.MCP.Tools); err != nil {
			cleanup()
			return nil, nil, err
		}
		log.Info("mcp tools registered", slog.String("command", cfg.MCP.ServerCommand))
	}

	client, err := llm.New(llm.Config{
		Provider:  llm.Provider(cfg.LLM.Provider),
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	orc, err := agent.NewOrchestrator(client, registry,
		agent.WithMaxIterations(cfg.Agent.MaxIterations))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return orc, cleanup, nil
}
