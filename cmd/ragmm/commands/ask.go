package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jamessukanto/rag-multimodal/internal/config"
	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// NewAskCmd constructs the `ragmm ask` command, which sends a single
// natural language question through the agent loop and prints the answer.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the agent a question over the ingested corpus",
		Long: `Ask the ragmm agent a natural language question.

The agent decides whether to search the ingested document corpus, runs the
retrieval pipeline as needed, and answers from the retrieved pages.

Examples:
  ragmm ask "what does the Q3 report say about revenue?"
  ragmm ask --json "summarise the methodology section"
  LLM_PROVIDER=anthropic ragmm ask "which figure shows the architecture?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			cfg := config.FromEnv()

			st, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeStores()

			retriever, err := buildRetrieval(cfg, st)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			orc, closeAgent, err := buildAgent(ctx, cfg, retriever, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeAgent()

			messages, err := orc.ProcessQuery(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(messages)
			}

			// Print the final assistant answer only.
			for i := len(messages) - 1; i >= 0; i-- {
				m := messages[i]
				if m.Role == llm.RoleAssistant && m.Content != nil {
					fmt.Println(*m.Content)
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full conversation (tool calls included) as JSON")

	return cmd
}
