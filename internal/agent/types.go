// Package agent implements the ReAct (Reason + Act) reasoning loop that
// turns a thread into model turns, tool calls, and more model turns until
// the model answers without calling tools.
package agent

import (
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/tool"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// StopReason describes why the agent loop terminated.
type StopReason string

// StopReason constants for agent loop termination.
const (
	StopReasonComplete         StopReason = "complete"
	StopReasonAwaitingApproval StopReason = "awaiting_approval"
	StopReasonMaxIterations    StopReason = "max_iterations"
	StopReasonLoopDetected     StopReason = "loop_detected"
	StopReasonTokenBudget      StopReason = "token_budget"
	StopReasonTimeout          StopReason = "timeout"
	StopReasonError            StopReason = "error"
)

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

// StreamEventType constants for streaming events.
const (
	StreamEventText      StreamEventType = "text"
	StreamEventToolStart StreamEventType = "tool_start"
	StreamEventToolEnd   StreamEventType = "tool_end"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
	StreamEventUsage     StreamEventType = "usage"
)

// StreamEvent is a single event emitted during a streaming agent loop.
type StreamEvent struct {
	Type    StreamEventType
	Content string

	// Call is set on tool_start (arguments may still be partial) and
	// tool_end (after dispatch).
	Call  *toolcall.Snapshot
	Usage *provider.TokenUsage

	// Final is set on StreamEventDone with the aggregated loop response.
	Final *Response
	Err   error
}

// Request is the input to the agent loop.
type Request struct {
	// Thread is read for history and receives every new assistant message.
	Thread *conversation.Thread

	SystemPrompt string
	Tools        []provider.ToolDefinition

	// Env is the execution environment of calls opened by this run.
	Env tool.ExecutionEnv
}

// Response is the output of the agent loop.
type Response struct {
	Content string

	// Calls are the calls dispatched during this run, in order.
	Calls []toolcall.Snapshot

	TotalUsage provider.TokenUsage
	Iterations int
	StopReason StopReason
}
