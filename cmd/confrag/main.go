package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/confrag/confrag/internal/config"
	"github.com/confrag/confrag/internal/confluence"
	"github.com/confrag/confrag/internal/embed"
	"github.com/confrag/confrag/internal/ingest"
	"github.com/confrag/confrag/internal/llm"
	"github.com/confrag/confrag/internal/llm/anthropic"
	"github.com/confrag/confrag/internal/llm/openai"
	"github.com/confrag/confrag/internal/logger"
	"github.com/confrag/confrag/internal/observability"
	"github.com/confrag/confrag/internal/qa"
	"github.com/confrag/confrag/internal/retrieval"
	"github.com/confrag/confrag/internal/weaviate"
)

func main() {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "confrag",
		Short: "Retrieval-augmented QA over Confluence pages",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(verbose)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/confrag.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging to stderr")

	var (
		ingestPages []string
		jsonReport  bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, chunk, embed, and upsert Confluence pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, ingestPages, jsonReport)
		},
	}
	ingestCmd.Flags().StringSliceVar(&ingestPages, "pages", nil, "Page IDs to ingest (defaults to confluence.page_ids)")
	ingestCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the run report as JSON")

	var (
		searchK   int
		searchRaw bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the stored chunks nearest to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), configPath, args[0], searchK, searchRaw)
		},
	}
	searchCmd.Flags().IntVar(&searchK, "k", retrieval.DefaultK, "How many chunks to return")
	searchCmd.Flags().BoolVar(&searchRaw, "raw", false, "Output results as JSON")

	var (
		askMode   string
		askRefine bool
		askK      int
	)
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question grounded in the ingested pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, args[0], askMode, askRefine, askK)
		},
	}
	askCmd.Flags().StringVar(&askMode, "mode", string(qa.ModeDetailed), "Answer style: detailed or simple")
	askCmd.Flags().BoolVar(&askRefine, "refine", false, "Refine the question with the model before retrieval")
	askCmd.Flags().IntVar(&askK, "k", qa.DefaultK, "How many chunks to retrieve as context")

	var (
		dumpPage    string
		dumpVectors bool
	)
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print stored chunk contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.Context(), configPath, dumpPage, dumpVectors)
		},
	}
	dumpCmd.Flags().StringVar(&dumpPage, "page", "", "Restrict to one page ID")
	dumpCmd.Flags().BoolVar(&dumpVectors, "vectors", false, "Include vector dimensions per chunk")

	var verifyPage string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored chunk counts, ids, and vector dimensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), configPath, verifyPage)
		},
	}
	verifyCmd.Flags().StringVar(&verifyPage, "page", "", "Also inspect one page's chunks in detail")

	var recreate bool
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Vector store schema operations",
	}
	schemaInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the chunk class in the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaInit(cmd.Context(), configPath, recreate)
		},
	}
	schemaInitCmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the class (deletes all stored chunks)")
	schemaCmd.AddCommand(schemaInitCmd)

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (retrieval only — search and dump work, ask does not)")
			fmt.Println()
			fmt.Println("Configure in confrag.yaml or via environment:")
			fmt.Println("  CONFRAG_LLM_PROVIDER=ollama")
			fmt.Println("  CONFRAG_LLM_MODEL=qwen2:7b-instruct")
			fmt.Println("  CONFRAG_LLM_BASE_URL=http://localhost:11434/v1")
		},
	}

	rootCmd.AddCommand(ingestCmd, searchCmd, askCmd, dumpCmd, verifyCmd, schemaCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = &config.Config{}
		cfg.Defaults()
	}
	return cfg, nil
}

func newStore(cfg *config.Config) *weaviate.Client {
	return weaviate.New(weaviate.Config{
		URL:    cfg.Weaviate.URL,
		APIKey: cfg.Weaviate.APIKey,
		Class:  cfg.Weaviate.Class,
	})
}

// newBatcher builds the embedding path. The embedding endpoint is always
// OpenAI-compatible (Ollama, vLLM, text-embeddings-inference). The returned
// provider carries the same transient-retry wrapper as the completion path;
// callers own its Close.
func newBatcher(cfg *config.Config) (*embed.Batcher, llm.Provider) {
	base := cfg.Embedding.BaseURL
	if base == "" {
		base = llm.KnownProviders["ollama"]
	}
	provider := llm.NewRetryProvider(
		openai.New(cfg.Embedding.APIKey, "", base, cfg.Embedding.Model),
		llm.DefaultRetryConfig(),
	)
	batcher := embed.NewBatcher(provider,
		embed.WithBatchSize(cfg.Embedding.BatchSize),
		embed.WithDimensions(cfg.Embedding.Dimensions),
	)
	return batcher, provider
}

// newProvider builds the completion model, or nil for retrieval-only runs.
func newProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	for _, p := range []struct{ name, url string }{
		{"openai", llm.KnownProviders["openai"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, ""), nil
		})
	}

	return factory.Create(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
}

func initTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	if cfg.Tracing.Environment != "" {
		tc.Environment = cfg.Tracing.Environment
	}
	if cfg.Tracing.SampleRate > 0 {
		tc.SampleRate = cfg.Tracing.SampleRate
	}
	return observability.InitTracing(ctx, tc)
}

func runIngest(ctx context.Context, configPath string, pages []string, jsonReport bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		pages = cfg.Confluence.PageIDs
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages to ingest: set confluence.page_ids or pass --pages")
	}

	tp, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	source := confluence.New(cfg.Confluence.BaseURL, cfg.Confluence.Email, cfg.Confluence.APIToken)
	store := newStore(cfg)
	defer store.Close()

	batcher, embedProvider := newBatcher(cfg)
	defer embedProvider.Close()

	pipeline := ingest.New(source, batcher, store, ingest.Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	})

	logger.Section("Ingest")
	run, err := pipeline.IngestAll(ctx, pages)

	if jsonReport {
		data, jerr := run.JSON()
		if jerr != nil {
			return jerr
		}
		fmt.Println(string(data))
	} else {
		run.PrintSummary(os.Stdout)
	}
	return err
}

func runSearch(ctx context.Context, configPath, query string, k int, raw bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := newStore(cfg)
	defer store.Close()

	batcher, embedProvider := newBatcher(cfg)
	defer embedProvider.Close()

	retriever := retrieval.New(batcher, store)

	ctx, span := observability.StartSearchSpan(ctx, k)
	defer span.End()

	results, err := retriever.Search(ctx, query, k)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	observability.RecordSearchResult(span, len(results))

	if raw {
		data, jerr := json.MarshalIndent(results, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("--- #%d  distance=%.4f  pageId=%s  chunk=%d ---\n", i+1, r.Distance, r.PageID, r.ChunkIndex)
		fmt.Printf("title: %s\n", r.Title)
		if r.URL != "" {
			fmt.Printf("url:   %s\n", r.URL)
		}
		fmt.Println(r.Content)
		fmt.Println()
	}
	return nil
}

func runAsk(ctx context.Context, configPath, question, mode string, refine bool, k int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return fmt.Errorf("ask needs a completion model: set llm.provider (current: none)")
	}
	defer provider.Close()

	store := newStore(cfg)
	defer store.Close()

	batcher, embedProvider := newBatcher(cfg)
	defer embedProvider.Close()

	retriever := retrieval.New(batcher, store)
	engine := qa.New(retriever, provider, qa.WithK(k))

	if refine {
		refined, err := engine.Refine(ctx, question)
		if err != nil {
			return err
		}
		logger.Info("refined question: %s", refined)
		question = refined
	}

	answer, err := engine.Ask(ctx, question, qa.Mode(mode))
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			fmt.Printf("  - %s (chunk %d, distance %.4f)\n", s.Title, s.ChunkIndex, s.Distance)
			if s.URL != "" {
				fmt.Printf("    %s\n", s.URL)
			}
		}
	}
	return nil
}

func runDump(ctx context.Context, configPath, pageID string, withVectors bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := newStore(cfg)
	defer store.Close()

	total := 0
	cursor := ""
	for {
		objects, next, err := store.FetchObjects(ctx, weaviate.PageOptions{
			PageID:        pageID,
			Cursor:        cursor,
			Limit:         100,
			IncludeVector: withVectors,
		})
		if err != nil {
			return err
		}
		for _, obj := range objects {
			props := obj.Properties
			fmt.Printf("--- pageId=%v  title=%v  chunkIndex=%v ---\n", props["pageId"], props["title"], props["chunkIndex"])
			if withVectors {
				fmt.Printf("vector dim: %d\n", len(obj.Vector))
			}
			fmt.Printf("%v\n\n", props["content"])
			total++
		}
		if next == "" {
			break
		}
		cursor = next
	}
	fmt.Fprintf(os.Stderr, "== total chunks printed: %d\n", total)
	return nil
}

func runVerify(ctx context.Context, configPath, pageID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := newStore(cfg)
	defer store.Close()

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("== %s total objects: %d\n", store.Class(), total)

	sample, _, err := store.FetchObjects(ctx, weaviate.PageOptions{Limit: 10})
	if err != nil {
		return err
	}
	fmt.Println("\n== sample objects (limit=10)")
	for _, obj := range sample {
		p := obj.Properties
		fmt.Printf("- pageId=%v  chunk=%v  title=%v\n", p["pageId"], p["chunkIndex"], p["title"])
		fmt.Printf("  updatedAt=%v  url=%v\n\n", p["updatedAt"], p["url"])
	}

	if pageID != "" {
		fmt.Printf("== objects for pageId=%s (limit=100)\n", pageID)
		objects, _, err := store.FetchObjects(ctx, weaviate.PageOptions{PageID: pageID, Limit: 100})
		if err != nil {
			return err
		}
		for _, obj := range objects {
			p := obj.Properties
			head := fmt.Sprintf("%v", p["content"])
			if runes := []rune(head); len(runes) > 60 {
				head = string(runes[:60])
			}
			fmt.Printf("- chunk=%3v  title=%v\n", p["chunkIndex"], p["title"])
			fmt.Printf("  %s ...\n", head)
		}
		fmt.Printf("(found %d chunks)\n", len(objects))
	}

	fmt.Println("\n== vector dimension check (1 object)")
	one, _, err := store.FetchObjects(ctx, weaviate.PageOptions{Limit: 1, IncludeVector: true})
	if err != nil {
		return err
	}
	if len(one) == 0 {
		fmt.Println("no objects to check.")
		return nil
	}
	if len(one[0].Vector) == 0 {
		fmt.Println("no vector on object")
		return nil
	}
	fmt.Printf("vector dim=%d  (expected %d for %s)\n", len(one[0].Vector), cfg.Embedding.Dimensions, cfg.Embedding.Model)
	return nil
}

func runSchemaInit(ctx context.Context, configPath string, recreate bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := newStore(cfg)
	defer store.Close()

	if err := store.EnsureClass(ctx, recreate); err != nil {
		return err
	}
	fmt.Printf("Class %s is ready.\n", store.Class())
	return nil
}
