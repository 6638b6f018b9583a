// Package session is the entry point of the tool-call pipeline. A user turn
// is classified; Tier 1 commands become a direct tool call and everything
// else runs the agent loop. Each session owns its thread and state machine,
// and sessions share nothing mutable beyond the approval policy's
// per-session trust records.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/history"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// Route names how a turn was handled.
type Route string

// Route values.
const (
	RouteDirect Route = "direct"
	RouteAgent  Route = "agent"
)

// Session is one user's partition of pipeline state.
type Session struct {
	id       string
	rootPath string
	thread   *conversation.Thread
	machine  *toolcall.Machine

	// lane serializes turns and decisions within the session.
	lane sync.Mutex

	mu           sync.Mutex
	createdAt    time.Time
	lastActiveAt time.Time

	// resumable is set when an agent turn stopped on a pending call.
	resumable bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ThreadID returns the id of the session's thread.
func (s *Session) ThreadID() string { return s.thread.ID() }

// Thread returns the session's thread.
func (s *Session) Thread() *conversation.Thread { return s.thread }

// Machine returns the session's tool-call state machine.
func (s *Session) Machine() *toolcall.Machine { return s.machine }

// Calls returns every call of the session in creation order.
func (s *Session) Calls() []toolcall.Snapshot { return s.machine.Snapshots() }

// Pending returns the calls waiting for a decision.
func (s *Session) Pending() []toolcall.Snapshot { return s.machine.Pending() }

// History returns the provider-facing history of the thread. Calls that are
// not yet terminal are left out.
func (s *Session) History() ([]provider.WireMessage, error) {
	return history.BuildWire(history.Sanitize(s.thread.Messages()))
}

// LastActive returns when the session last handled a turn or decision.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActiveAt = now
	s.mu.Unlock()
}

func (s *Session) setResumable(v bool) {
	s.mu.Lock()
	s.resumable = v
	s.mu.Unlock()
}

func (s *Session) isResumable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumable
}

// Turn is the outcome of one user turn.
type Turn struct {
	SessionID      string              `json:"session_id"`
	Classification classify.Timed      `json:"classification"`
	Route          Route               `json:"route"`
	Content        string              `json:"content,omitempty"`
	Calls          []toolcall.Snapshot `json:"calls,omitempty"`

	// AwaitingApproval is set when a call is pending a decision.
	AwaitingApproval bool `json:"awaiting_approval,omitempty"`

	StopReason string              `json:"stop_reason,omitempty"`
	Usage      provider.TokenUsage `json:"usage"`
}

// nextInOrder reports ErrOutOfOrder when a call declared before id has not
// settled yet. Approving id would run it ahead of that call.
func (s *Session) nextInOrder(id string) error {
	for _, c := range history.Unresolved(s.thread.Messages()) {
		if c.ID() == id {
			return nil
		}
		return fmt.Errorf("%w: %s waits on %s", ErrOutOfOrder, id, c.ID())
	}
	return nil
}
