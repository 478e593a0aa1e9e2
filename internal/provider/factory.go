package provider

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xonecas/parley/internal/config"
)

// OpenAIFactory creates OpenAI-compatible providers sharing one rate limiter.
type OpenAIFactory struct {
	name     string
	endpoint string
	apiKey   string
	limiter  *rate.Limiter
}

func NewOpenAIFactory(name, endpoint, apiKey string, rateLimit float64, rateBurst int) *OpenAIFactory {
	return &OpenAIFactory{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		limiter:  newLimiter(rateLimit, rateBurst),
	}
}

func (f *OpenAIFactory) Name() string { return f.name }

func (f *OpenAIFactory) Create(model string, temperature float64) Provider {
	return NewOpenAI(f.name, f.endpoint, model, f.apiKey, temperature, f.limiter)
}

// EchoFactory creates echo providers.
type EchoFactory struct {
	delay time.Duration
}

func NewEchoFactory(delay time.Duration) *EchoFactory {
	return &EchoFactory{delay: delay}
}

func (f *EchoFactory) Name() string { return "echo" }

func (f *EchoFactory) Create(model string, temperature float64) Provider {
	return NewEcho(f.delay)
}

func newLimiter(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// NewRegistryFromConfig registers the built-in factories: "echo" always, and
// "openai" and "ollama" pointing at the configured endpoint.
func NewRegistryFromConfig(cfg config.ResponderConfig, creds *config.Credentials) *Registry {
	registry := NewRegistry()
	registry.RegisterFactory("echo", NewEchoFactory(0))

	apiKey := ""
	if creds != nil {
		apiKey = creds.GetAPIKey(cfg.Provider)
	}
	if cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}
	for _, name := range []string{"openai", "ollama"} {
		registry.RegisterFactory(name, NewOpenAIFactory(name, cfg.Endpoint, apiKey, cfg.RateLimit, cfg.RateBurst))
	}
	return registry
}

// FromConfig creates the responder selected by cfg.Provider.
func FromConfig(cfg config.ResponderConfig, creds *config.Credentials) (Provider, error) {
	p, err := NewRegistryFromConfig(cfg, creds).Create(cfg.Provider, cfg.Model, cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("responder %q: %w", cfg.Provider, err)
	}
	return p, nil
}
