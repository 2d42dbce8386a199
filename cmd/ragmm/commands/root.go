// Package commands defines all Cobra CLI commands for the ragmm binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Jamessukanto/rag-multimodal/internal/audit"
	"github.com/Jamessukanto/rag-multimodal/internal/config"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragmm",
		Short: "ragmm — a multimodal RAG agent over your document corpus",
		Long: `ragmm is an agentic retrieval system for multimodal document corpora.

It ingests page-level document chunks, embeds them with the Jina embedding
API (one dense vector and one multi-vector per page), and answers questions
through a tool-calling LLM agent backed by a two-stage retrieval pipeline:
batched ANN candidate search followed by MaxSim late-interaction reranking.

The chat provider is selected via the LLM_PROVIDER environment variable
or a YAML config file (~/.ragmm/config.yaml).
See 'ragmm --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragmm/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
