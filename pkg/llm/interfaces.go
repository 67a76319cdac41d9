// Package llm provides the OpenAI-compatible completion client used by plan
// generation and SQL synthesis, plus response parsing helpers.
package llm

import "context"

// Request is one completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is a completed request with usage accounting.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionClient defines the completion operations the pipeline needs.
// Use this interface for dependency injection to enable mocking in tests.
type CompletionClient interface {
	// Complete generates a chat completion for the request.
	Complete(ctx context.Context, req Request) (*Result, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure Client implements CompletionClient at compile time.
var _ CompletionClient = (*Client)(nil)
