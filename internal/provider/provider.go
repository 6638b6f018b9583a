// Package provider defines the model-facing boundary: the Provider interface,
// provider-neutral messages, and the chat-completions wire format.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in sub-packages (e.g., provider/openaicompat).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing from the gateway.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
