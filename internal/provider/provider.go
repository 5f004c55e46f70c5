// Package provider defines the reasoning model interface driven by the run engine.
package provider

import "context"

// Provider is a chat model that can request tool calls.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a chat request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

// Name implements Provider.
func (f Func) Name() string { return "func" }

// Chat implements Provider.
func (f Func) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
