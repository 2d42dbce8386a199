// Package server implements the HTTP server that exposes the agent loop
// and the retrieval pipeline via a small JSON API. The server is started
// by the `ragmm serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jamessukanto/rag-multimodal/internal/agent"
	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/retrieval"
)

// New constructs a Server from the agent service, the retrieval service,
// and config.
func New(agentSvc agentService, retriever chunkRetriever, cfg *Config) (*Server, error) {
	if agentSvc == nil {
		return nil, fmt.Errorf("server: agent service must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("server: retrieval service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full agent loop with several tool rounds.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.NewRegistry()
	}

	s := &Server{
		agent:     agentSvc,
		retriever: retriever,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
		registry:  cfg.MetricsRegistry,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/agent/query",
		rl.middleware(s.instrument("agent_query", http.HandlerFunc(s.handleAgentQuery))))
	mux.Handle("GET /api/agent/tools",
		s.instrument("agent_tools", http.HandlerFunc(s.handleAgentTools)))
	mux.Handle("POST /api/retrieval/search",
		rl.middleware(s.instrument("retrieval_search", http.HandlerFunc(s.handleSearch))))
	mux.Handle("GET /healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /readyz", s.instrument("readyz", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAgentQuery handles POST /api/agent/query. It runs the full agentic
// loop and returns the complete conversation, tool rounds included.
func (s *Server) handleAgentQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req agentQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	messages, err := s.agent.ProcessQuery(r.Context(), req.Query, req.Messages)
	if err != nil {
		outcome := "error"
		var loopErr *agent.LoopLimitError
		if errors.As(err, &loopErr) {
			outcome = "loop_limit"
		}
		s.metrics.agentQueriesTotal.WithLabelValues(outcome).Inc()
		s.metrics.agentQueryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

		log := logging.FromContext(r.Context())
		log.Error("agent query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.agentQueriesTotal.WithLabelValues("ok").Inc()
	s.metrics.agentQueryDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, agentQueryResponse{Messages: messages})
}

// handleAgentTools handles GET /api/agent/tools. It lists every registered
// tool with its input schema so clients can inspect the agent's surface.
func (s *Server) handleAgentTools(w http.ResponseWriter, r *http.Request) {
	tools := s.agent.ListTools()
	if tools == nil {
		tools = []llm.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: tools})
}

// handleSearch handles POST /api/retrieval/search. It runs the retrieval
// pipeline directly, bypassing the agent loop.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries is required")
		return
	}

	opts := retrieval.Options{
		TopKANN:      req.TopKANN,
		TopKRerank:   req.TopKRerank,
		Filter:       req.Filter,
		UseReranking: req.UseReranking == nil || *req.UseReranking,
	}

	results, err := s.retriever.RetrieveChunks(r.Context(), req.Queries, opts)
	if err != nil {
		s.metrics.searchRequestsTotal.WithLabelValues("error").Inc()
		log := logging.FromContext(r.Context())
		log.Error("retrieval search failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.searchRequestsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// handleHealth handles GET /healthz for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
