package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileConfig configures the file-based secrets provider.
// WARNING: This provider is for development/testing only. Do not use in production.
type FileConfig struct {
	// Path is the path to the secrets file (JSON format)
	Path string
}

// FileProvider reads secrets from a JSON file.
// WARNING: This is for development only. Use env vars in production.
type FileProvider struct {
	config *FileConfig
	mu     sync.RWMutex
	data   map[string]string
}

// NewFileProvider creates a file-based secrets provider.
func NewFileProvider(config *FileConfig) (*FileProvider, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("file path required")
	}

	p := &FileProvider{
		config: config,
		data:   make(map[string]string),
	}
	if err := p.load(); err != nil {
		return nil, fmt.Errorf("load secrets file: %w", err)
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.config.Path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &p.data)
}

// Reload reloads secrets from the file.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}
