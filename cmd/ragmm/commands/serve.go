package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jamessukanto/rag-multimodal/internal/config"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/server"
)

// NewServeCmd constructs the `ragmm serve` command, which starts the HTTP
// server exposing the agent and the retrieval pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragmm HTTP server",
		Long: `Start the ragmm HTTP server.

The server exposes a JSON API:
  POST /api/agent/query       run a query through the agent loop
  GET  /api/agent/tools       list the registered tools
  POST /api/retrieval/search  run the retrieval pipeline directly
  GET  /healthz               liveness
  GET  /readyz                readiness (qdrant, local stores)
  GET  /metrics               Prometheus exposition

Examples:
  ragmm serve
  ragmm serve --port 9090
  LLM_PROVIDER=anthropic ragmm serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := config.FromEnv()
			log.Info("serve starting",
				slog.String("provider", cfg.LLM.Provider),
				slog.String("model", cfg.LLM.Model),
			)

			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStores()

			retriever, err := buildRetrieval(cfg, st)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			orc, closeAgent, err := buildAgent(ctx, cfg, retriever, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeAgent()

			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			srv, err := server.New(orc, retriever, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: st.pingers(),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default from config)")

	return cmd
}
