package ports

import "context"

// StructuredCompleter sends a prompt pair and parses the model's JSON reply
// into result. Implementations enforce a per-call timeout; a malformed or
// incomplete reply surfaces as an error, never a panic.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, result interface{}) error
}

// TextCompleter sends a prompt pair and returns the model's free-text reply.
type TextCompleter interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMProvider is the full text-intelligence capability: structured calls for
// subreddit suggestion, thread filtering and batch comment scoring, text
// calls for summarization.
type LLMProvider interface {
	StructuredCompleter
	TextCompleter
}
