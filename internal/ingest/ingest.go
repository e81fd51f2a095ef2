// Package ingest orchestrates the write side of the pipeline: fetch a
// page, normalize its storage body to plain text, chunk, embed, and upsert
// each chunk into the vector store under a deterministic id.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confrag/confrag/internal/chunk"
	"github.com/confrag/confrag/internal/confluence"
	"github.com/confrag/confrag/internal/embed"
	"github.com/confrag/confrag/internal/identity"
	"github.com/confrag/confrag/internal/logger"
	"github.com/confrag/confrag/internal/metrics"
	"github.com/confrag/confrag/internal/observability"
	"github.com/confrag/confrag/internal/weaviate"
)

// PageSource yields documents to ingest. *confluence.Client satisfies it.
type PageSource interface {
	GetPage(ctx context.Context, pageID string) (*confluence.Page, error)
}

// PassageEmbedder vectorizes chunk texts. *embed.Batcher satisfies it.
type PassageEmbedder interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists chunk records. *weaviate.Client satisfies it.
type Store interface {
	Upsert(ctx context.Context, id string, props Properties, vector []float32) error
}

// Properties aliases the store's record payload so callers of this package
// only import one chunk-record type.
type Properties = weaviate.Properties

// Options tunes the pipeline. Zero values take the package defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline runs documents through fetch, normalize, chunk, embed, upsert.
type Pipeline struct {
	source   PageSource
	embedder PassageEmbedder
	store    Store
	opts     Options
}

func New(source PageSource, embedder PassageEmbedder, store Store, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = chunk.DefaultOverlap
	}
	return &Pipeline{source: source, embedder: embedder, store: store, opts: opts}
}

// IngestPage runs one document through the full pipeline and reports its
// metrics. A page that normalizes to empty text is skipped, not an error.
// Chunks that fail to upsert are reported through the error while earlier
// chunks of the same page stay persisted.
func (p *Pipeline) IngestPage(ctx context.Context, pageID string) (metrics.PageMetrics, error) {
	started := time.Now()
	pm := metrics.PageMetrics{PageID: pageID}

	ctx, span := observability.StartIngestSpan(ctx, pageID)
	defer span.End()

	page, err := p.source.GetPage(ctx, pageID)
	if err != nil {
		pm.Error = err.Error()
		pm.Duration = time.Since(started)
		observability.RecordError(span, err)
		return pm, fmt.Errorf("ingest page %s: %w", pageID, err)
	}
	pm.Title = page.Title
	logger.Info("page %s: fetched %q", pageID, page.Title)

	text := confluence.StorageToText(page.Body)
	pm.TextRunes = len([]rune(text))
	if text == "" {
		logger.Warn("page %s: empty after normalization, skipping", pageID)
		pm.Duration = time.Since(started)
		return pm, nil
	}

	chunks, err := chunk.Split(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		pm.Error = err.Error()
		pm.Duration = time.Since(started)
		observability.RecordError(span, err)
		return pm, fmt.Errorf("ingest page %s: %w", pageID, err)
	}
	pm.ChunkCount = len(chunks)
	logger.Debug("page %s: %d runes, %d chunks", pageID, pm.TextRunes, len(chunks))

	embedCtx, embedSpan := observability.StartEmbedSpan(ctx, len(chunks))
	vectors, err := p.embedder.EmbedPassages(embedCtx, chunks)
	if err != nil {
		observability.RecordError(embedSpan, err)
		embedSpan.End()
		pm.Error = err.Error()
		pm.Duration = time.Since(started)
		observability.RecordError(span, err)
		return pm, fmt.Errorf("ingest page %s: %w", pageID, err)
	}
	embedSpan.End()

	storeCtx, storeSpan := observability.StartStoreSpan(ctx, "upsert")
	var firstErr error
	for i, content := range chunks {
		id := identity.ChunkID(pageID, i)
		props := Properties{
			PageID:     pageID,
			Title:      page.Title,
			URL:        page.URL,
			UpdatedAt:  page.UpdatedAt,
			Content:    content,
			ChunkIndex: i,
		}
		if err := p.store.Upsert(storeCtx, id, props, vectors[i]); err != nil {
			logger.Warn("page %s chunk %d: %v", pageID, i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pm.Upserted++
	}

	observability.RecordError(storeSpan, firstErr)
	storeSpan.End()

	pm.Duration = time.Since(started)
	observability.RecordIngestResult(span, pm.ChunkCount, pm.Upserted, pm.Duration)
	if firstErr != nil {
		pm.Error = firstErr.Error()
		return pm, fmt.Errorf("ingest page %s: %w", pageID, firstErr)
	}
	logger.Info("page %s: upserted %d chunks", pageID, pm.Upserted)
	return pm, nil
}

// IngestAll runs every page, isolating per-document failures: one failed
// page does not stop the run. An embedding dimension mismatch is the
// exception; it means the model configuration is wrong for every document,
// so the run aborts immediately.
func (p *Pipeline) IngestAll(ctx context.Context, pageIDs []string) (*metrics.IngestMetrics, error) {
	run := metrics.New()

	for _, pageID := range pageIDs {
		pm, err := p.IngestPage(ctx, pageID)
		run.AddPage(pm)
		if err == nil {
			continue
		}

		var dimErr *embed.DimensionError
		if errors.As(err, &dimErr) {
			run.Finish()
			return run, fmt.Errorf("aborting run: %w", err)
		}
		if ctx.Err() != nil {
			run.Finish()
			return run, ctx.Err()
		}
		logger.Warn("page %s failed: %v", pageID, err)
	}

	run.Finish()
	return run, nil
}
