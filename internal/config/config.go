// Package config loads application configuration from a file and the
// CONFRAG_* environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/confrag/confrag/internal/chunk"
	"github.com/confrag/confrag/internal/embed"
	"github.com/confrag/confrag/internal/secrets"
)

// Config holds all application configuration.
type Config struct {
	Confluence ConfluenceConfig `mapstructure:"confluence"`
	Weaviate   WeaviateConfig   `mapstructure:"weaviate"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ConfluenceConfig struct {
	BaseURL  string   `mapstructure:"base_url"`
	Email    string   `mapstructure:"email"`
	APIToken string   `mapstructure:"api_token"`
	PageIDs  []string `mapstructure:"page_ids"`
}

type WeaviateConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Class  string `mapstructure:"class"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// Defaults fills unset tunables with the pipeline defaults.
func (c *Config) Defaults() {
	if c.Chunking.Size == 0 {
		c.Chunking.Size = chunk.DefaultSize
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = chunk.DefaultOverlap
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = embed.DefaultBatchSize
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = embed.Dimensions
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "bge-m3"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// ResolveSecrets fills credential fields left empty by the config file from
// the secrets backends (CONFRAG_* environment by default).
func (c *Config) ResolveSecrets(ctx context.Context) {
	if c.Confluence.APIToken == "" {
		c.Confluence.APIToken = secrets.GetOrDefault(ctx, secrets.SecretConfluenceToken, "")
	}
	if c.Weaviate.APIKey == "" {
		c.Weaviate.APIKey = secrets.GetOrDefault(ctx, secrets.SecretWeaviateAPIKey, "")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = secrets.GetOrDefault(ctx, secrets.SecretLLMAPIKey, "")
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = secrets.GetOrDefault(ctx, secrets.SecretEmbedAPIKey, "")
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Confluence.BaseURL == "" {
		warnings = append(warnings, "confluence base_url is empty; ingest and dump will fail")
	}
	if c.Confluence.BaseURL != "" && (c.Confluence.Email == "" || c.Confluence.APIToken == "") {
		warnings = append(warnings, "confluence credentials are incomplete (email and api_token are both required)")
	}
	if c.Weaviate.URL == "" {
		warnings = append(warnings, "weaviate url is empty; store operations will fail")
	}
	if c.Chunking.Size > 0 && (c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size) {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d must be in [0, size %d)", c.Chunking.Overlap, c.Chunking.Size))
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CONFRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Defaults()
	cfg.ResolveSecrets(context.Background())

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
