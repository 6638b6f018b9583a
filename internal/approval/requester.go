package approval

import (
	"context"
	"encoding/json"
)

// Request is sent to a Requester when a tool call needs user consent.
type Request struct {
	// ID is the tool call identifier.
	ID string

	SessionID string
	ToolName  string

	// Description is a human-readable summary of what the tool will do.
	Description string

	// Arguments are the finalized JSON arguments the tool will receive.
	Arguments json.RawMessage

	// Dangerous marks tools that can change state outside the workspace.
	Dangerous bool
}

// Response is the user's decision.
type Response struct {
	Approved bool

	// Reason is an optional explanation, shown to the model on rejection.
	Reason string
}

// Requester asks a user to approve a tool call. Implementations block until
// a decision arrives or ctx is done.
type Requester interface {
	RequestApproval(ctx context.Context, req Request) (Response, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, req Request) (Response, error)

// RequestApproval implements Requester.
func (f RequesterFunc) RequestApproval(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Compile-time interface guard.
var _ Requester = RequesterFunc(nil)
