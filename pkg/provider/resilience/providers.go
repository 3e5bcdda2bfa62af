package resilience

import (
	"context"

	"github.com/mnemo-ai/mnemo/pkg/provider/embeddings"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// Embedder wraps an [embeddings.Provider] with a circuit breaker. Only Embed
// goes through the breaker; Dimensions and ModelID are static metadata.
type Embedder struct {
	inner   embeddings.Provider
	breaker *Breaker
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Embedder)(nil)

// NewEmbedder wraps p with a breaker using the default tuning.
func NewEmbedder(p embeddings.Provider) *Embedder {
	return &Embedder{
		inner:   p,
		breaker: NewBreaker(BreakerConfig{Name: "embeddings/" + p.ModelID()}),
	}
}

// Embed implements [embeddings.Provider].
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return Call(e.breaker, func() ([]float32, error) {
		return e.inner.Embed(ctx, text)
	})
}

// Dimensions implements [embeddings.Provider].
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// ModelID implements [embeddings.Provider].
func (e *Embedder) ModelID() string { return e.inner.ModelID() }

// LLM wraps an [llm.Provider] with a circuit breaker.
type LLM struct {
	inner   llm.Provider
	breaker *Breaker
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps p with a breaker using the default tuning.
func NewLLM(p llm.Provider) *LLM {
	return &LLM{
		inner:   p,
		breaker: NewBreaker(BreakerConfig{Name: "llm/" + p.ModelID()}),
	}
}

// Complete implements [llm.Provider].
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(l.breaker, func() (*llm.CompletionResponse, error) {
		return l.inner.Complete(ctx, req)
	})
}

// ModelID implements [llm.Provider].
func (l *LLM) ModelID() string { return l.inner.ModelID() }
