// Package subagent runs long-lived supervising units ("agents") spawned by a
// tool call. Agents are created asynchronously by a Launcher, report their
// lifecycle through status events, and write their terminal summary back to
// the spawning call through the tool-call state machine.
package subagent

import (
	"sync"
	"time"
)

// Status represents the lifecycle state of a sub-agent.
type Status string

// Status constants for sub-agent lifecycle.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusKilled    Status = "killed"
)

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s != StatusRunning && s != ""
}

// Event is a status update for one agent, as produced by a Launcher.
type Event struct {
	AgentID  string `json:"id"`
	Status   Status `json:"status"`
	Progress string `json:"progress,omitempty"`

	// Summary is the agent's final answer. Set on completed events.
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SubAgent is the local record of one agent.
type SubAgent struct {
	mu         sync.Mutex
	id         string
	sessionID  string
	callID     string
	task       string
	status     Status
	progress   string
	summary    string
	err        string
	createdAt  time.Time
	updatedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

func newSubAgent(id string, req SpawnRequest, now time.Time) *SubAgent {
	return &SubAgent{
		id:        id,
		sessionID: req.SessionID,
		callID:    req.CallID,
		task:      req.Task,
		status:    StatusRunning,
		createdAt: now,
		updatedAt: now,
		done:      make(chan struct{}),
	}
}

// update applies ev and reports whether it made the agent terminal. Events
// after a terminal status are ignored.
func (s *SubAgent) update(ev Event, now time.Time) (finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	if ev.Status != "" {
		s.status = ev.Status
	}
	if ev.Progress != "" {
		s.progress = ev.Progress
	}
	if ev.Summary != "" {
		s.summary = ev.Summary
	}
	if ev.Error != "" {
		s.err = ev.Error
	}
	s.updatedAt = now
	if !s.status.Terminal() {
		return false
	}
	s.finishedAt = now
	close(s.done)
	return true
}

// Snapshot returns a point-in-time copy of the sub-agent state.
func (s *SubAgent) Snapshot() Snap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snap{
		ID:         s.id,
		SessionID:  s.sessionID,
		CallID:     s.callID,
		Task:       s.task,
		Status:     s.status,
		Progress:   s.progress,
		Summary:    s.summary,
		Error:      s.err,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
		FinishedAt: s.finishedAt,
	}
}

// Snap is a point-in-time copy of a SubAgent, safe for concurrent reads.
type Snap struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	CallID     string    `json:"call_id,omitempty"`
	Task       string    `json:"task"`
	Status     Status    `json:"status"`
	Progress   string    `json:"progress,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
