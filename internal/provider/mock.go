package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockProvider is a test provider that returns predefined responses.
type MockProvider struct {
	name     string
	response string
	chatErr  error
	delay    time.Duration
	calls    atomic.Int64
}

// NewMock creates a new mock provider.
func NewMock(name, response string) *MockProvider {
	return &MockProvider{
		name:     name,
		response: response,
	}
}

// WithChatError sets an error to return from Chat.
func (p *MockProvider) WithChatError(err error) *MockProvider {
	p.chatErr = err
	return p
}

// WithDelay makes Chat wait d, or until its context ends, before answering.
func (p *MockProvider) WithDelay(d time.Duration) *MockProvider {
	p.delay = d
	return p
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	return p.name
}

// Calls returns how many times Chat was invoked.
func (p *MockProvider) Calls() int {
	return int(p.calls.Load())
}

// Chat returns the predefined response or error.
func (p *MockProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.chatErr != nil {
		return "", p.chatErr
	}
	return p.response, nil
}

// EchoProvider answers with the last user message. It needs no model server.
type EchoProvider struct {
	delay time.Duration
}

// NewEcho creates an echo provider that waits delay before answering.
func NewEcho(delay time.Duration) *EchoProvider {
	return &EchoProvider{delay: delay}
}

func (p *EchoProvider) Name() string { return "echo" }

func (p *EchoProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return fmt.Sprintf("You said: %s", messages[i].Content), nil
		}
	}
	return "", ErrEmptyResponse
}
