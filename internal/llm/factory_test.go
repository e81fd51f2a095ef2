package llm

import (
	"testing"
	"time"
)

func TestFactory_CreateNone(t *testing.T) {
	f := NewFactory()
	for _, name := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: name})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != nil {
			t.Errorf("provider %q: expected nil provider", name)
		}
	}
}

func TestFactory_CreateUnknown(t *testing.T) {
	f := NewFactory()
	_, err := f.Create(ProviderConfig{Provider: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactory_CreateWrapsWithRetry(t *testing.T) {
	f := NewFactory()
	f.Register("scripted", func(cfg ProviderConfig) (Provider, error) {
		return &scriptedProvider{name: "scripted"}, nil
	})

	p, err := f.Create(ProviderConfig{
		Provider:   "scripted",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", p)
	}
	if retry.config.MaxRetries != 2 {
		t.Errorf("expected MaxRetries 2, got %d", retry.config.MaxRetries)
	}
	if retry.config.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", retry.config.Timeout)
	}
	if retry.Name() != "scripted" {
		t.Errorf("expected inner name to pass through, got %q", retry.Name())
	}
}
