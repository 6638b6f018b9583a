// Package hook provides lifecycle hooks around tool-call execution.
// Hooks intercept a call at three positions: before it runs, after the
// handler returns, and after the terminal state is recorded. This enables
// audit logging, policy blocks, and result rewriting.
package hook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flemzord/toolpipe/internal/tool"
)

// Position identifies where in the execution a hook runs.
type Position string

const (
	// BeforeExecute runs after the call is approved, before the handler.
	// Hooks here can block the call.
	BeforeExecute Position = "before_execute"

	// AfterExecute runs after the handler returns, before the result is
	// recorded. Hooks here can rewrite the result.
	AfterExecute Position = "after_execute"

	// AfterSettle runs once the call reached a terminal state.
	// Hooks here are fire-and-forget (errors are logged, never propagated).
	AfterSettle Position = "after_settle"
)

// Action signals the pipeline what to do after a hook executes.
type Action int

const (
	// ActionContinue tells the pipeline to proceed normally.
	ActionContinue Action = iota

	// ActionBlock stops the call before the handler runs. The call fails
	// with tool.FailureBlocked. Only valid for BeforeExecute hooks.
	ActionBlock

	// ActionModify signals that the hook rewrote Context.Result.
	// Only meaningful for AfterExecute hooks.
	ActionModify
)

// Context carries data available to hooks. Shared across all three
// positions for one call.
type Context struct {
	Position Position

	CallID    string
	ToolName  string
	Arguments json.RawMessage
	Env       tool.ExecutionEnv

	// Status is the call status when the hook runs.
	Status string

	// Result is non-nil for AfterExecute and AfterSettle.
	Result *tool.Result

	// Duration is the handler wall time, set for AfterExecute and AfterSettle.
	Duration time.Duration

	// BlockReason is set by a BeforeExecute hook that returns ActionBlock.
	BlockReason string

	// Metadata is shared across positions, allowing hooks to pass data.
	Metadata map[string]any

	Logger *slog.Logger
}

// Hook is the extension point interface for execution interception.
type Hook interface {
	// Position returns where this hook should execute.
	Position() Position

	// Priority determines execution order within a position.
	// Lower values run first.
	Priority() int

	// Execute runs the hook logic. The returned Action tells the
	// pipeline how to proceed.
	Execute(ctx context.Context, hctx *Context) (Action, error)
}
