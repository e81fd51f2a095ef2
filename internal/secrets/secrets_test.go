package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("CONFRAG_CONFLUENCE_API_TOKEN", "tok-123")

	p := NewEnvProvider("CONFRAG_")
	val, err := p.Get(context.Background(), "confluence_api_token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "tok-123" {
		t.Errorf("got %q", val)
	}
}

func TestEnvProvider_UnprefixedFallback(t *testing.T) {
	t.Setenv("LLM_API_KEY", "raw-key")

	p := NewEnvProvider("CONFRAG_")
	val, err := p.Get(context.Background(), "llm_api_key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "raw-key" {
		t.Errorf("got %q", val)
	}
}

func TestEnvProvider_NotFound(t *testing.T) {
	p := NewEnvProvider("CONFRAG_")
	if _, err := p.Get(context.Background(), "definitely_not_set_anywhere"); err == nil {
		t.Fatal("expected error for missing env var")
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	content := `{"weaviate_api_key": "wv-secret"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, err := p.Get(context.Background(), "weaviate_api_key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "wv-secret" {
		t.Errorf("got %q", val)
	}

	if _, err := p.Get(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestFileProvider_MissingFile(t *testing.T) {
	if _, err := NewFileProvider(&FileConfig{Path: "/nonexistent/secrets.json"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileProvider_NoPath(t *testing.T) {
	if _, err := NewFileProvider(&FileConfig{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestManager_PrimaryThenFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{"llm_api_key": "from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFRAG_EMBEDDING_API_KEY", "from-env")

	m, err := NewManager(&Config{Provider: "file", FileConfig: &FileConfig{Path: path}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.DisableCache()

	// Primary hit
	val, err := m.Get(context.Background(), "llm_api_key")
	if err != nil || val != "from-file" {
		t.Errorf("primary: val=%q err=%v", val, err)
	}

	// Fallback to env when the file misses the key
	val, err = m.Get(context.Background(), "embedding_api_key")
	if err != nil || val != "from-env" {
		t.Errorf("fallback: val=%q err=%v", val, err)
	}
}

func TestManager_GetOrDefault(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.DisableCache()

	if got := m.GetOrDefault(context.Background(), "never_set_key", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestManager_Cache(t *testing.T) {
	t.Setenv("CONFRAG_LLM_API_KEY", "v1")

	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if val, _ := m.Get(context.Background(), "llm_api_key"); val != "v1" {
		t.Fatalf("got %q", val)
	}

	// Cached value survives the env var changing
	os.Setenv("CONFRAG_LLM_API_KEY", "v2")
	if val, _ := m.Get(context.Background(), "llm_api_key"); val != "v1" {
		t.Errorf("expected cached v1, got %q", val)
	}

	m.ClearCache()
	if val, _ := m.Get(context.Background(), "llm_api_key"); val != "v2" {
		t.Errorf("expected fresh v2, got %q", val)
	}
}

func TestManager_UnknownProvider(t *testing.T) {
	if _, err := NewManager(&Config{Provider: "vault"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
