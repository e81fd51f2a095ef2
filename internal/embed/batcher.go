// Package embed turns chunk text into dense vectors in fixed-size batches,
// enforcing the embedding model's role-prefix convention and output
// dimensionality.
package embed

import (
	"context"
	"fmt"
)

// Dimensions is the vector length produced by the target model (bge-m3).
const Dimensions = 1024

// DefaultBatchSize is how many texts are embedded per model call.
const DefaultBatchSize = 16

// The model is trained for asymmetric search: stored passages and search
// queries carry different role prefixes. Omitting them degrades retrieval,
// so the prefix is applied here and nowhere else.
const (
	passagePrefix = "passage: "
	queryPrefix   = "query: "
)

// Embedder is the capability the batcher drives. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DimensionError reports a vector whose length does not match the expected
// dimensionality. It aborts the whole document before any upsert.
type DimensionError struct {
	Index int // position of the offending vector in the input order
	Got   int
	Want  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embed: unexpected embedding dim %d at index %d (expected %d)", e.Got, e.Index, e.Want)
}

// Batcher groups texts into batches and validates the embedding output.
type Batcher struct {
	embedder  Embedder
	batchSize int
	dims      int
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize overrides the per-call batch size.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithDimensions overrides the expected vector length.
func WithDimensions(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.dims = n
		}
	}
}

// NewBatcher creates a Batcher over the given embedding capability.
func NewBatcher(e Embedder, opts ...Option) *Batcher {
	b := &Batcher{
		embedder:  e,
		batchSize: DefaultBatchSize,
		dims:      Dimensions,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedPassages embeds stored chunk texts, preserving input order: the
// vector at position i belongs to texts[i]. Every vector is validated
// against the expected dimensionality before anything is returned.
func (b *Batcher) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, passagePrefix+t)
		}

		out, err := b.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(out) != len(batch) {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d texts", start, end, len(out), len(batch))
		}
		vectors = append(vectors, out...)
	}

	for i, v := range vectors {
		if len(v) != b.dims {
			return nil, &DimensionError{Index: i, Got: len(v), Want: b.dims}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query with the query role prefix.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := b.embedder.Embed(ctx, []string{queryPrefix + text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors for 1 text", len(out))
	}
	if len(out[0]) != b.dims {
		return nil, &DimensionError{Index: 0, Got: len(out[0]), Want: b.dims}
	}
	return out[0], nil
}
