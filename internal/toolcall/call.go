package toolcall

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/tool"
)

// Call is one tool invocation requested by the model or the user.
// Fields are only mutated by a Machine; readers take a Snapshot.
type Call struct {
	mu sync.Mutex

	id        string
	toolName  string
	env       tool.ExecutionEnv
	args      bytes.Buffer
	status    Status
	partial   bool
	result    *tool.Result
	rejection string
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot is an immutable copy of a call's state.
type Snapshot struct {
	ID        string            `json:"id"`
	ToolName  string            `json:"tool_name"`
	Arguments json.RawMessage   `json:"arguments,omitempty"`
	Env       tool.ExecutionEnv `json:"env"`
	Status    Status            `json:"status"`
	Partial   bool              `json:"is_partial,omitempty"`

	// Result is set if and only if Status is completed or failed.
	Result *tool.Result `json:"result,omitempty"`

	// RejectionReason is set if and only if Status is rejected.
	RejectionReason string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ID returns the call id.
func (c *Call) ID() string { return c.id }

// ToolName returns the requested tool.
func (c *Call) ToolName() string { return c.toolName }

// Status returns the current status.
func (c *Call) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsPartial reports whether the arguments are still being assembled.
func (c *Call) IsPartial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partial
}

// Snapshot returns a copy of the call's current state.
func (c *Call) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Call) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:              c.id,
		ToolName:        c.toolName,
		Env:             c.env,
		Status:          c.status,
		Partial:         c.partial,
		RejectionReason: c.rejection,
		CreatedAt:       c.createdAt,
		UpdatedAt:       c.updatedAt,
	}
	if c.args.Len() > 0 {
		s.Arguments = json.RawMessage(bytes.Clone(c.args.Bytes()))
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}
	return s
}

// Content returns the text a tool-role message carries for this call: the
// result content for completed and failed calls, the rejection reason for
// rejected ones, and "" otherwise.
func (s Snapshot) Content() string {
	switch {
	case s.Result != nil:
		return s.Result.Content()
	case s.Status == StatusRejected:
		return s.RejectionReason
	}
	return ""
}

// ArgumentsJSON returns the arguments, or "{}" when none were given.
func (s Snapshot) ArgumentsJSON() json.RawMessage {
	if len(bytes.TrimSpace(s.Arguments)) == 0 {
		return json.RawMessage("{}")
	}
	return s.Arguments
}

// Restore rebuilds a call from a stored snapshot. Snapshots that break the
// result invariant are repaired: a stray result on a non-terminal call is
// dropped, and a missing result on a completed or failed call is replaced
// with a failure so history stays well-formed.
func Restore(s Snapshot) *Call {
	c := &Call{
		id:        s.ID,
		toolName:  s.ToolName,
		env:       s.Env,
		status:    s.Status,
		partial:   s.Partial,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}
	if !c.status.Valid() {
		c.status = StatusPending
	}
	c.args.Write(s.Arguments)

	switch {
	case c.status.HasResult() && s.Result != nil:
		r := *s.Result
		c.result = &r
	case c.status.HasResult():
		r := tool.Failure(tool.FailureExecution, "result lost")
		c.result = &r
		c.status = StatusFailed
	case c.status == StatusRejected:
		c.rejection = s.RejectionReason
		if c.rejection == "" {
			c.rejection = DefaultRejectionReason
		}
	}
	return c
}

// DefaultRejectionReason is used when a call is rejected without a reason.
const DefaultRejectionReason = approval.DefaultRejectionReason
