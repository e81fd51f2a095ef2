// Package retrieval runs the query side of the pipeline: embed the search
// text, find the nearest stored chunks, and present them ranked by
// distance.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/confrag/confrag/internal/weaviate"
)

// DefaultK is how many chunks a search returns when the caller does not say.
const DefaultK = 5

// QueryEmbedder produces the query-side vector. *embed.Batcher satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers near-vector queries. *weaviate.Client satisfies it.
type Searcher interface {
	QueryNearVector(ctx context.Context, vector []float32, k int, fields []string) ([]weaviate.Match, error)
}

// Result is one retrieved chunk with its provenance.
type Result struct {
	PageID     string
	Title      string
	URL        string
	Content    string
	ChunkIndex int
	Distance   float64
}

// Retriever ties the query embedder to the vector store.
type Retriever struct {
	embedder QueryEmbedder
	store    Searcher
}

func New(embedder QueryEmbedder, store Searcher) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search returns up to k chunks nearest to the query, ordered by ascending
// distance. An empty store yields an empty result, not an error. k <= 0
// asks for nothing and yields an empty result without touching the
// embedder or the store.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	matches, err := r.store.QueryNearVector(ctx, vector, k, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	// The store may return more than asked under some configurations;
	// the contract here is at most k.
	if len(matches) > k {
		matches = matches[:k]
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			PageID:     str(m.Properties, "pageId"),
			Title:      str(m.Properties, "title"),
			URL:        str(m.Properties, "url"),
			Content:    str(m.Properties, "content"),
			ChunkIndex: integer(m.Properties, "chunkIndex"),
			Distance:   m.Distance,
		})
	}
	return results, nil
}

// BuildContext joins retrieved chunk contents into a single prompt context
// block, in rank order.
func BuildContext(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n\n")
}

func str(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func integer(props map[string]any, key string) int {
	// GraphQL numbers decode as float64.
	f, _ := props[key].(float64)
	return int(f)
}
