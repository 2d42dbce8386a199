package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Agent queries can run several tool rounds, so this defaults high.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /readyz.
	// If empty, /readyz returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry is the Prometheus registry backing GET /metrics.
	// If nil, a fresh registry is created. Tests inject their own to stay
	// hermetic.
	MetricsRegistry *prometheus.Registry
}

// agentService is the interface the agent query handlers call.
// *agent.Orchestrator satisfies it; tests inject a fake.
type agentService interface {
	// ProcessQuery runs the agentic loop and returns the full updated
	// conversation history.
	ProcessQuery(ctx context.Context, query string, history []llm.Message) ([]llm.Message, error)

	// ListTools returns the definitions of all registered tools.
	ListTools() []llm.ToolDefinition
}

// chunkRetriever is the interface the search handler calls.
// *retrieval.Service satisfies it; tests inject a fake.
type chunkRetriever interface {
	RetrieveChunks(ctx context.Context, queries []string, opts retrieval.Options) ([]retrieval.QueryResult, error)
}

// Server is the HTTP server that exposes the agent and the retrieval
// pipeline.
type Server struct {
	// agent handles agentic query processing and tool listing.
	agent agentService
	// retriever handles direct retrieval search requests.
	retriever chunkRetriever
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /readyz.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// registry is the Prometheus registry gathered by GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// agentQueryRequest is the JSON body for POST /api/agent/query.
type agentQueryRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
	// Messages is the optional prior conversation history. The new query
	// is appended to it so multi-turn conversations continue.
	Messages []llm.Message `json:"messages,omitempty"`
}

// agentQueryResponse is the JSON response for POST /api/agent/query.
// Messages is the complete conversation including tool calls and results.
type agentQueryResponse struct {
	Messages []llm.Message `json:"messages"`
}

// toolsResponse is the JSON response for GET /api/agent/tools.
type toolsResponse struct {
	Tools []llm.ToolDefinition `json:"tools"`
}

// searchRequest is the JSON body for POST /api/retrieval/search.
type searchRequest struct {
	// Queries is one or more query strings to search for.
	Queries []string `json:"queries"`
	// UseReranking toggles the MaxSim second stage (default: true).
	UseReranking *bool `json:"use_reranking,omitempty"`
	// TopKANN is the ANN candidate pool size per query (default from
	// pipeline config).
	TopKANN int `json:"top_k_ann,omitempty"`
	// TopKRerank is the final result count per query after reranking.
	TopKRerank int `json:"top_k_rerank,omitempty"`
	// Filter restricts candidates by metadata equality (e.g. {"doc_id": …}).
	Filter map[string]string `json:"filter,omitempty"`
}

// searchResponse is the JSON response for POST /api/retrieval/search.
// Results holds one entry per input query, in input order.
type searchResponse struct {
	Results []retrieval.QueryResult `json:"results"`
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Error string `json:"error"`
}
