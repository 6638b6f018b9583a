package agent

import (
	"context"

	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// ToolExecutor dispatches the calls of one assistant message through the
// state machine.
type ToolExecutor struct {
	machine   *toolcall.Machine
	requester approval.Requester
}

// NewToolExecutor creates a ToolExecutor. A nil requester leaves calls that
// need approval pending.
func NewToolExecutor(machine *toolcall.Machine, requester approval.Requester) *ToolExecutor {
	return &ToolExecutor{machine: machine, requester: requester}
}

// Machine returns the state machine calls are dispatched through.
func (e *ToolExecutor) Machine() *toolcall.Machine { return e.machine }

// Execute dispatches calls one at a time in declaration order and returns
// the snapshots of the calls it reached. It stops at the first call left
// pending, so no later call runs before an earlier one is decided, and at
// the first dispatch error, which only happens when ctx ends during an
// approval wait.
func (e *ToolExecutor) Execute(ctx context.Context, calls []*toolcall.Call, onDone func(toolcall.Snapshot)) ([]toolcall.Snapshot, error) {
	out := make([]toolcall.Snapshot, 0, len(calls))
	for _, c := range calls {
		snap, err := e.machine.Dispatch(ctx, c.ID(), e.requester)
		if err != nil {
			return out, err
		}
		out = append(out, snap)
		if onDone != nil {
			onDone(snap)
		}
		if snap.Status == toolcall.StatusPending {
			return out, nil
		}
	}
	return out, nil
}

// Redispatch re-evaluates the leading pending calls of unresolved, in
// order, and dispatches them again. A decision recorded since they were
// first dispatched (a session trust grant) may now let them run. It stops
// at the first call that is not pending, or that is still partial.
func (e *ToolExecutor) Redispatch(ctx context.Context, unresolved []*toolcall.Call, onDone func(toolcall.Snapshot)) ([]toolcall.Snapshot, error) {
	var ready []*toolcall.Call
	for _, c := range unresolved {
		snap := c.Snapshot()
		if snap.Status != toolcall.StatusPending || snap.Partial {
			break
		}
		ready = append(ready, c)
	}
	if len(ready) == 0 {
		return nil, nil
	}
	return e.Execute(ctx, ready, onDone)
}
