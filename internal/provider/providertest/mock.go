// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/toolpipe/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc      func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc   func() string
	HealthCheckFunc func(ctx context.Context) error

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Complete records the request and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.record(req)
	return m.CompleteFunc(ctx, req)
}

// Stream records the request and delegates to StreamFunc.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.record(req)
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock-model".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock-model"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	return m.HealthCheckFunc(ctx)
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockProvider) record(req provider.CompletionRequest) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

// Sequence returns a CompleteFunc that replays responses in order and
// repeats the last one once exhausted.
func Sequence(responses ...provider.CompletionResponse) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return resp, nil
	}
}

// StreamSequence returns a StreamFunc that replays one chunk list per call
// and repeats the last one once exhausted.
func StreamSequence(streams ...[]provider.StreamChunk) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		mu.Lock()
		chunks := streams[i]
		if i < len(streams)-1 {
			i++
		}
		mu.Unlock()

		ch := make(chan provider.StreamChunk, len(chunks))
		for _, c := range chunks {
			ch <- c
		}
		close(ch)
		return ch, nil
	}
}
