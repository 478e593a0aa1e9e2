package provider

import (
	"errors"
	"testing"

	"github.com/xonecas/parley/internal/config"
)

func TestOpenAIFactorySharesLimiter(t *testing.T) {
	factory := NewOpenAIFactory("ollama", "http://localhost:11434/v1", "", 1.0, 2)

	p1 := factory.Create("model-a", 0.7)
	p2 := factory.Create("model-b", 0.5)

	openai1, ok := p1.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected OpenAIProvider, got %T", p1)
	}
	openai2, ok := p2.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected OpenAIProvider, got %T", p2)
	}

	if openai1.limiter == nil || openai2.limiter == nil {
		t.Fatal("expected non-nil rate limiters")
	}
	if openai1.limiter != openai2.limiter {
		t.Fatal("expected shared limiter across providers")
	}
}

func TestOpenAIFactoryWithoutLimit(t *testing.T) {
	factory := NewOpenAIFactory("openai", "https://api.example.com/v1", "key", 0, 0)
	p := factory.Create("model", 0.2).(*OpenAIProvider)
	if p.limiter != nil {
		t.Error("expected no limiter when rate_limit is 0")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Responder

	tests := []struct {
		provider string
		wantType string
	}{
		{"echo", "*provider.EchoProvider"},
		{"ollama", "*provider.OpenAIProvider"},
		{"openai", "*provider.OpenAIProvider"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg.Provider = tt.provider
			p, err := FromConfig(cfg, nil)
			if err != nil {
				t.Fatalf("FromConfig() error: %v", err)
			}
			if got := typeName(p); got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}

	cfg.Provider = "nope"
	if _, err := FromConfig(cfg, nil); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestFromConfigAPIKey(t *testing.T) {
	cfg := config.DefaultConfig().Responder
	cfg.Provider = "openai"

	creds := &config.Credentials{}
	creds.SetAPIKey("openai", "stored-key")

	registry := NewRegistryFromConfig(cfg, creds)
	f, ok := registry.factories["openai"].(*OpenAIFactory)
	if !ok || f.apiKey != "stored-key" {
		t.Errorf("expected stored key, got %+v", registry.factories["openai"])
	}

	cfg.APIKey = "config-key"
	registry = NewRegistryFromConfig(cfg, creds)
	if f := registry.factories["openai"].(*OpenAIFactory); f.apiKey != "config-key" {
		t.Errorf("expected config key to win, got %q", f.apiKey)
	}
}
