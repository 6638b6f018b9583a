// Package tool defines the tool capability interface and the registry that
// executes tools by name. The registry is bookkeeping only: approval and the
// call lifecycle live in the toolcall package.
package tool

import (
	"context"
	"encoding/json"
)

// Category groups tools by the kind of side effect they have.
type Category string

// Category values.
const (
	CategoryFS     Category = "fs"
	CategoryShell  Category = "shell"
	CategoryAgent  Category = "agent"
	CategoryCustom Category = "custom"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFS, CategoryShell, CategoryAgent, CategoryCustom:
		return true
	}
	return false
}

// Tool is the interface that all tools must implement.
// Implementations are registered once and never mutated afterwards.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Category returns the side-effect class of the tool.
	Category() Category

	// RequiresApproval reports whether a call must pass the approval policy
	// before it runs.
	RequiresApproval() bool

	// IsDangerous marks tools whose effects are destructive or hard to undo.
	IsDangerous() bool

	// Execute runs the tool with the given arguments and environment.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

// ExecutionEnv identifies where a call runs. It intentionally does not
// expose secrets or os.Environ.
type ExecutionEnv struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`

	// RootPath is the directory file-system tools are confined to.
	RootPath string `json:"root_path"`

	// AgentID is set when the call runs on behalf of a sub-agent.
	AgentID string `json:"agent_id,omitempty"`

	// CallID is the id of the tool call being executed.
	CallID string `json:"call_id,omitempty"`
}

// Output is what a tool handler returns.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// Data is optional structured output.
	Data any

	// IsError indicates whether the output represents an error condition.
	IsError bool
}

// FailureCode classifies why a Result is unsuccessful.
type FailureCode string

// FailureCode values.
const (
	FailureNotFound         FailureCode = "not_found"
	FailureInvalidArguments FailureCode = "invalid_arguments"
	FailureExecution        FailureCode = "execution_failed"
	FailureRateLimited      FailureCode = "rate_limited"
	FailurePanic            FailureCode = "panic"
	FailureBlocked          FailureCode = "blocked"
)

// Result is the structured outcome of Registry.Execute. Failures are values,
// never Go errors.
type Result struct {
	Success bool        `json:"success"`
	Output  string      `json:"output,omitempty"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    FailureCode `json:"code,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(code FailureCode, msg string) Result {
	return Result{Success: false, Error: msg, Code: code}
}

// Content returns the text a model should see for this result.
func (r Result) Content() string {
	if r.Success {
		return r.Output
	}
	if r.Error != "" {
		return "Error: " + r.Error
	}
	if r.Output != "" {
		return r.Output
	}
	return "Error: tool failed without a message"
}
