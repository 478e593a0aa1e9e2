// Package provider defines the assistant responder interface used by the
// development server, and its implementations.
package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrProviderNotFound is returned when a requested provider doesn't exist.
var ErrProviderNotFound = errors.New("provider not found")

// ErrEmptyResponse is returned when a provider produces no answer.
var ErrEmptyResponse = errors.New("no response choices")

// Message represents a chat message.
type Message struct {
	Role    string
	Content string
}

// Provider produces the assistant's answer to a conversation.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// Chat sends messages and returns the complete response.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Factory creates providers for a model. Providers from one factory share its rate limiter.
type Factory interface {
	Name() string
	Create(model string, temperature float64) Provider
}

// Registry holds available provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory adds a factory under name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds a provider from the named factory.
func (r *Registry) Create(name, model string, temperature float64) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrProviderNotFound
	}
	return f.Create(model, temperature), nil
}

// List returns all registered factory names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
