// Package llm defines the Provider interface for chat-completion backends.
//
// The memory engine uses a language model for a single purpose: condensing raw
// input into a short declarative fact before it is embedded and stored. The
// interface is deliberately minimal — no streaming, no tool calling.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// CompletionRequest is a single-turn chat completion request.
type CompletionRequest struct {
	// SystemPrompt is the optional system message prepended to the exchange.
	SystemPrompt string

	// Prompt is the user message to complete.
	Prompt string

	// Temperature controls sampling randomness. Zero means the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply to a [CompletionRequest].
type CompletionResponse struct {
	// Content is the assistant message text.
	Content string

	// Usage reports token consumption for the call.
	Usage Usage
}

// Usage reports token counts for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete performs a blocking chat completion and returns the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the provider-specific model identifier (e.g., "gpt-4o-mini").
	ModelID() string
}
