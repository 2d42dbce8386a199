// Command ragmm is the entry point for the multimodal RAG agent.
// It provides a CLI interface (via Cobra) and an HTTP server that exposes
// the agent loop and the retrieval pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/Jamessukanto/rag-multimodal/cmd/ragmm/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
