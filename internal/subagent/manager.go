package subagent

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/eventbuf"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool"
)

// DefaultMaxConcurrent bounds running agents per manager.
const DefaultMaxConcurrent = 5

// Launcher starts agents on some backend. Launch returns the new agent's
// id; the backend reports status through sink, possibly before Launch has
// returned.
type Launcher interface {
	Launch(ctx context.Context, req SpawnRequest, sink func(Event)) (string, error)
	Cancel(id string) error
}

// SuperviseFunc writes an agent's terminal summary to the call that
// spawned it.
type SuperviseFunc func(sessionID, callID string, res tool.Result)

// ManagerConfig configures the sub-agent manager.
type ManagerConfig struct {
	Launcher      Launcher
	MaxConcurrent int

	// Supervise receives the terminal result of agents spawned by a call.
	// Optional.
	Supervise SuperviseFunc

	// OnStatus observes every agent status change. Optional.
	OnStatus func(Snap)

	Audit   *security.AuditLogger
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Manager tracks agents and routes their status events. Events that arrive
// before Spawn has registered the agent are buffered and seed the agent on
// registration.
type Manager struct {
	cfg ManagerConfig
	buf *eventbuf.Buffer[Event]

	mu     sync.Mutex
	agents map[string]*SubAgent
	active int
}

// NewManager creates a sub-agent manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:    cfg.withDefaults(),
		agents: make(map[string]*SubAgent),
	}
	m.buf = eventbuf.New(eventbuf.Config[Event]{
		Apply:      m.apply,
		OnBuffered: m.cfg.Metrics.SetBufferedEvents,
		Now:        m.cfg.Now,
	})
	return m
}

// SpawnRequest is the input for spawning a sub-agent.
type SpawnRequest struct {
	SessionID string
	CallID    string
	Task      string

	// RootPath confines the agent's file-system tools.
	RootPath string

	// Timeout bounds the agent's run. Zero uses the launcher default.
	Timeout time.Duration

	// IsSubAgent marks a request made from inside an agent. Rejected.
	IsSubAgent bool
}

// Spawn launches an agent and registers it locally.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (Snap, error) {
	if req.IsSubAgent {
		return Snap{}, ErrRecursiveSpawn
	}
	if m.cfg.Launcher == nil {
		return Snap{}, ErrNoLauncher
	}

	m.mu.Lock()
	if m.active >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return Snap{}, ErrMaxConcurrent
	}
	m.active++
	m.mu.Unlock()

	id, err := m.cfg.Launcher.Launch(ctx, req, m.OnEvent)
	if err != nil {
		m.release()
		return Snap{}, fmt.Errorf("subagent: launch: %w", err)
	}

	var (
		sa       *SubAgent
		finished bool
	)
	seeded := m.buf.Register(id, func(seed *Event) {
		sa = newSubAgent(id, req, m.cfg.Now())
		if seed != nil {
			finished = sa.update(*seed, m.cfg.Now())
		}
		m.mu.Lock()
		m.agents[id] = sa
		m.mu.Unlock()
	})

	m.cfg.Audit.Log(security.AuditEvent{
		Type:      security.EventAgentSpawn,
		SessionID: req.SessionID,
		CallID:    req.CallID,
		AgentID:   id,
		Detail:    req.Task,
	})
	m.cfg.Logger.Info("sub-agent spawned",
		"agent_id", id,
		"session_id", req.SessionID,
		"call_id", req.CallID,
		"seeded", seeded,
	)

	m.notify(sa)
	if finished {
		m.finish(sa)
	}
	return sa.Snapshot(), nil
}

// OnEvent routes a status event from the launcher backend.
func (m *Manager) OnEvent(ev Event) {
	if ev.AgentID == "" {
		return
	}
	if m.buf.Deliver(ev.AgentID, ev) {
		m.cfg.Logger.Debug("sub-agent event buffered before registration",
			"agent_id", ev.AgentID,
			"status", ev.Status,
		)
	}
}

func (m *Manager) apply(id string, ev Event) {
	m.mu.Lock()
	sa, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	finished := sa.update(ev, m.cfg.Now())
	m.notify(sa)
	if finished {
		m.finish(sa)
	}
}

func (m *Manager) notify(sa *SubAgent) {
	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(sa.Snapshot())
	}
}

// finish runs once per agent, when it first reaches a terminal status.
func (m *Manager) finish(sa *SubAgent) {
	m.release()

	snap := sa.Snapshot()
	m.cfg.Logger.Info("sub-agent finished",
		"agent_id", snap.ID,
		"status", snap.Status,
		"session_id", snap.SessionID,
	)
	if m.cfg.Supervise != nil && snap.CallID != "" {
		m.cfg.Supervise(snap.SessionID, snap.CallID, Summarize(snap))
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

// Summarize converts a terminal agent snapshot into the result of the call
// that spawned it.
func Summarize(s Snap) tool.Result {
	if s.Status == StatusCompleted {
		out := s.Summary
		if out == "" {
			out = fmt.Sprintf("agent %s completed", s.ID)
		}
		return tool.Result{Success: true, Output: out}
	}
	msg := s.Error
	if msg == "" {
		msg = "agent " + s.ID + " " + string(s.Status)
	}
	return tool.Failure(tool.FailureExecution, msg)
}

// Get returns the snapshot of one agent.
func (m *Manager) Get(id string) (Snap, error) {
	sa, err := m.lookup(id)
	if err != nil {
		return Snap{}, err
	}
	return sa.Snapshot(), nil
}

// List returns the agents of a session, oldest first. An empty sessionID
// lists every agent.
func (m *Manager) List(sessionID string) []Snap {
	m.mu.Lock()
	agents := make([]*SubAgent, 0, len(m.agents))
	for _, sa := range m.agents {
		agents = append(agents, sa)
	}
	m.mu.Unlock()

	out := make([]Snap, 0, len(agents))
	for _, sa := range agents {
		s := sa.Snapshot()
		if sessionID == "" || s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Snap) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Active returns the number of running agents.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Wait blocks until the agent is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Snap, error) {
	sa, err := m.lookup(id)
	if err != nil {
		return Snap{}, err
	}
	select {
	case <-sa.done:
		return sa.Snapshot(), nil
	case <-ctx.Done():
		return sa.Snapshot(), ctx.Err()
	}
}

// Kill cancels a running agent.
func (m *Manager) Kill(id string) (Snap, error) {
	sa, err := m.lookup(id)
	if err != nil {
		return Snap{}, err
	}
	if s := sa.Snapshot(); s.Status.Terminal() {
		return s, fmt.Errorf("%w: %s (status: %s)", ErrAlreadyFinished, id, s.Status)
	}
	if err := m.cfg.Launcher.Cancel(id); err != nil {
		m.cfg.Logger.Warn("sub-agent cancel failed", "agent_id", id, "error", err)
	}
	m.apply(id, Event{AgentID: id, Status: StatusKilled, Error: "killed"})
	return sa.Snapshot(), nil
}

// Shutdown kills all running agents.
func (m *Manager) Shutdown(_ context.Context) error {
	for _, s := range m.List("") {
		if s.Status.Terminal() {
			continue
		}
		if _, err := m.Kill(s.ID); err != nil {
			m.cfg.Logger.Debug("sub-agent already finished at shutdown", "agent_id", s.ID)
		}
	}
	return nil
}

// PruneBuffered drops buffered events older than maxAge for agents that
// never registered.
func (m *Manager) PruneBuffered(maxAge time.Duration) int {
	return m.buf.Prune(maxAge)
}

func (m *Manager) lookup(id string) (*SubAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sa, nil
}
