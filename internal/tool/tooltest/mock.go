// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/toolpipe/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
// Zero-valued fields fall back to a harmless fs tool that needs approval.
type MockTool struct {
	ToolName     string
	ToolCategory tool.Category
	ToolSchema   json.RawMessage
	NoApproval   bool
	Dangerous    bool
	ExecuteFunc  func(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error)

	mu    sync.Mutex
	calls []json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.ToolName == "" {
		return "mock_tool"
	}
	return m.ToolName
}

// Description implements tool.Tool.
func (m *MockTool) Description() string { return "mock tool " + m.Name() }

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.ToolSchema == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return m.ToolSchema
}

// Category implements tool.Tool.
func (m *MockTool) Category() tool.Category {
	if m.ToolCategory == "" {
		return tool.CategoryFS
	}
	return m.ToolCategory
}

// RequiresApproval implements tool.Tool.
func (m *MockTool) RequiresApproval() bool { return !m.NoApproval }

// IsDangerous implements tool.Tool.
func (m *MockTool) IsDangerous() bool { return m.Dangerous }

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args, env)
	}
	return tool.Output{Content: "ok"}, nil
}

// Calls returns the arguments of every Execute call so far.
func (m *MockTool) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// SimpleTool creates a tool that echoes "executed: <name>".
func SimpleTool(name string, category tool.Category) *MockTool {
	return &MockTool{
		ToolName:     name,
		ToolCategory: category,
		ExecuteFunc: func(_ context.Context, _ json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
			return tool.Output{Content: "executed: " + name}, nil
		},
	}
}

// Interface guard.
var _ tool.Tool = (*MockTool)(nil)
