// Package budget provides token budget estimation and history trimming for
// the agent loop. Because the agent supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/Jamessukanto/rag-multimodal/internal/llm"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving
	// room for the output and for retrieved page content.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// messages, summing role, content, and tool call payloads for each.
func EstimateMessages(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(m.Role)
		if m.Content != nil {
			total += Estimate(*m.Content)
		}
		for _, tc := range m.ToolCalls {
			total += Estimate(tc.Name)
			total += Estimate(tc.Arguments)
		}
	}
	return total
}

// TrimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history fits within maxTokens. fixed
// contains messages that must not be trimmed (the current user message).
// history contains prior conversation turns that may be dropped
// oldest-first.
//
// Tool result messages are never left at the head of the trimmed history:
// when a dropped assistant message carried tool calls, its results are
// dropped with it so providers never see an orphaned tool turn.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned (fixed messages are never dropped
// here — callers should warn separately if fixed alone exceeds the budget).
func TrimHistory(fixed, history []llm.Message, maxTokens int) []llm.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	// History is typically short; a linear scan dropping oldest-first is
	// clear and correct.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
		for len(history) > 0 && history[0].Role == llm.RoleTool {
			history = history[1:]
		}
	}
	return history
}
