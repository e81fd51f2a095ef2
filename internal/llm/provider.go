// Package llm defines the provider abstraction for the two model
// capabilities the pipeline consumes: text completion (question refinement
// and answer generation) and dense embeddings.
package llm

import "context"

// Provider is the interface all model backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
	// Close releases any underlying connections.
	Close() error
}

// RequestOptions tunes a single completion call. Nil fields keep the
// provider defaults.
type RequestOptions struct {
	Temperature *float64
	MaxTokens   *int
}
