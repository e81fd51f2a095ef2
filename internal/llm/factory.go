package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds everything needed to create a model provider.
type ProviderConfig struct {
	Provider   string // "anthropic", "openai", "ollama", "custom"
	APIKey     string
	Model      string
	BaseURL    string // override for self-hosted / custom endpoints
	EmbedModel string // embedding model (OpenAI-compatible providers only)

	Timeout    time.Duration // per-request timeout (default: 2 minutes)
	MaxRetries int           // retry attempts (default: 5)
	RetryDelay time.Duration // initial backoff delay (default: 1s)
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory; callers register the backends they
// link in.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config, wrapped with retry logic.
// Returns nil (no error) when provider is empty or "none", allowing
// retrieval-only operation without a completion model.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q — registered: %v", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	retry := DefaultRetryConfig()
	if cfg.Timeout > 0 {
		retry.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.RetryDelay = cfg.RetryDelay
	}
	return NewRetryProvider(provider, retry), nil
}

func (f *ProviderFactory) names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders documents the built-in provider presets. OpenAI-compatible
// APIs (Ollama, vLLM, text-embeddings-inference, Together, etc.) use the
// "openai" provider with a custom base_url.
var KnownProviders = map[string]string{
	"anthropic": "https://api.anthropic.com/v1",
	"openai":    "https://api.openai.com/v1",
	"ollama":    "http://localhost:11434/v1",
}
