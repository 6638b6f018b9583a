// Package hooktest provides test doubles for the hook package.
package hooktest

import (
	"context"
	"sync"

	"github.com/flemzord/toolpipe/internal/hook"
)

// MockHook is a configurable test double for hook.Hook.
type MockHook struct {
	PositionVal hook.Position
	PriorityVal int
	ExecuteFunc func(ctx context.Context, hctx *hook.Context) (hook.Action, error)

	mu    sync.Mutex
	Calls int
}

// Compile-time interface check.
var _ hook.Hook = (*MockHook)(nil)

// Position returns the configured position.
func (m *MockHook) Position() hook.Position { return m.PositionVal }

// Priority returns the configured priority.
func (m *MockHook) Priority() int { return m.PriorityVal }

// Execute delegates to ExecuteFunc and increments the call counter.
func (m *MockHook) Execute(ctx context.Context, hctx *hook.Context) (hook.Action, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, hctx)
	}
	return hook.ActionContinue, nil
}

// CallCount returns the number of times Execute was called.
func (m *MockHook) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// Recorder returns a hook at pos that records the contexts it sees.
func Recorder(pos hook.Position, priority int) (*MockHook, func() []hook.Context) {
	var (
		mu   sync.Mutex
		seen []hook.Context
	)
	h := &MockHook{
		PositionVal: pos,
		PriorityVal: priority,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) (hook.Action, error) {
			mu.Lock()
			seen = append(seen, *hctx)
			mu.Unlock()
			return hook.ActionContinue, nil
		},
	}
	return h, func() []hook.Context {
		mu.Lock()
		defer mu.Unlock()
		out := make([]hook.Context, len(seen))
		copy(out, seen)
		return out
	}
}
