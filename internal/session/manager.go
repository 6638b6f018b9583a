package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/toolpipe/internal/agent"
	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/hook"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/tool"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// interruptedReason fails calls that were approved or running when their
// session was last persisted; nothing will ever finish them.
const interruptedReason = "interrupted before completion"

// Config configures a Manager.
type Config struct {
	// Classifier routes user input. Required.
	Classifier *classify.Classifier

	// Registry holds the tools calls may run. Required.
	Registry *tool.Registry

	// Provider is the agent model. Without one only Tier 1 commands work.
	Provider provider.Provider

	// Policy is shared by every session; trust records are keyed by
	// session id. Nil selects a session-once policy.
	Policy *approval.Policy

	Hooks *hook.Pipeline

	// Store persists threads. Nil keeps them in memory.
	Store conversation.Store

	// Requester answers approvals inline. Nil leaves calls pending for
	// Approve or Reject.
	Requester       approval.Requester
	ApprovalTimeout time.Duration

	Loop         agent.LoopConfig
	SystemPrompt string

	// RootPath is the directory file-system tools are confined to.
	RootPath string

	// OnCallEvent receives every call lifecycle event of every session.
	OnCallEvent func(toolcall.Event)

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
	NewID   func() string
}

func (c Config) withDefaults() Config {
	if c.Policy == nil {
		c.Policy = approval.NewPolicy(approval.PolicyConfig{Logger: c.Logger, Metrics: c.Metrics})
	}
	if c.Store == nil {
		c.Store = conversation.NewMemoryStore()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Manager owns every live session.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("session: classifier is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}, nil
}

// Policy returns the shared approval policy.
func (m *Manager) Policy() *approval.Policy { return m.cfg.Policy }

// Classifier returns the input classifier.
func (m *Manager) Classifier() *classify.Classifier { return m.cfg.Classifier }

// Open returns the live session with id, loading it from the store or
// creating it when needed. An empty id creates a new session.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = m.cfg.NewID()
	}
	if s, ok, err := m.live(id); ok || err != nil {
		return s, err
	}

	s, err := m.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return m.adopt(s)
}

// Lookup returns the session with id if it is live or stored.
func (m *Manager) Lookup(ctx context.Context, id string) (*Session, error) {
	if s, ok, err := m.live(id); ok || err != nil {
		return s, err
	}
	s, err := m.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return m.adopt(s)
}

func (m *Manager) live(id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	s, ok := m.sessions[id]
	return s, ok, nil
}

// adopt registers s unless another goroutine registered the same id first.
func (m *Manager) adopt(s *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if existing, ok := m.sessions[s.id]; ok {
		return existing, nil
	}
	m.sessions[s.id] = s
	return s, nil
}

// load builds a session from its latest stored thread. With create, a
// session without threads gets a fresh one; otherwise it is not found.
func (m *Manager) load(ctx context.Context, id string, create bool) (*Session, error) {
	threads, err := m.cfg.Store.ListThreads(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: list threads: %w", err)
	}

	now := m.cfg.Now()
	var thread *conversation.Thread
	switch {
	case len(threads) > 0:
		info, recs, err := m.cfg.Store.LoadThread(ctx, threads[len(threads)-1].ID)
		if err != nil {
			return nil, fmt.Errorf("session: load thread: %w", err)
		}
		var errs []error
		thread, errs = conversation.Load(info, recs)
		for _, e := range errs {
			m.cfg.Logger.Warn("skipped invalid stored message", "session_id", id, "error", e)
		}
	case create:
		thread = conversation.NewThread(conversation.ThreadInfo{
			ID:        m.cfg.NewID(),
			SessionID: id,
			CreatedAt: now,
		})
		if err := m.cfg.Store.SaveThread(ctx, thread.Info()); err != nil {
			return nil, fmt.Errorf("session: save thread: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s := &Session{
		id:           id,
		rootPath:     m.cfg.RootPath,
		thread:       thread,
		createdAt:    now,
		lastActiveAt: now,
	}
	s.machine = toolcall.NewMachine(toolcall.MachineConfig{
		Registry:        m.cfg.Registry,
		Policy:          m.cfg.Policy,
		Hooks:           m.cfg.Hooks,
		ApprovalTimeout: m.cfg.ApprovalTimeout,
		Logger:          m.cfg.Logger.With("session_id", id),
		Metrics:         m.cfg.Metrics,
		Tracer:          m.cfg.Tracer,
		Now:             m.cfg.Now,
		NewID:           m.cfg.NewID,
	})
	if m.cfg.OnCallEvent != nil {
		s.machine.Subscribe(m.cfg.OnCallEvent)
	}

	if err := m.restoreCalls(s); err != nil {
		return nil, err
	}
	if len(threads) > 0 {
		m.cfg.Logger.Info("session restored",
			"session_id", id,
			"thread_id", thread.ID(),
			"messages", thread.Len(),
			"pending", len(s.machine.Pending()),
		)
	}
	return s, nil
}

// restoreCalls tracks stored calls. Pending calls stay pending; calls cut
// off mid-execution are failed so the thread can continue.
func (m *Manager) restoreCalls(s *Session) error {
	interrupted := false
	for _, c := range s.thread.Calls() {
		if err := s.machine.Track(c); err != nil {
			return fmt.Errorf("session: restore call: %w", err)
		}
		switch c.Status() {
		case toolcall.StatusApproved, toolcall.StatusRunning:
			if _, err := s.machine.ApplySupervisorResult(c.ID(), tool.Failure(tool.FailureExecution, interruptedReason)); err != nil {
				return fmt.Errorf("session: restore call: %w", err)
			}
			interrupted = true
		case toolcall.StatusPending:
			s.resumable = true
		}
	}
	if interrupted {
		m.persist(context.Background(), s)
	}
	return nil
}

// Input is one user turn.
type Input struct {
	SessionID string
	Text      string

	// OnEvent, if set, streams the agent loop's events.
	OnEvent func(agent.StreamEvent)
}

// Handle runs one user turn to completion or to the first call left
// pending for a decision.
func (m *Manager) Handle(ctx context.Context, in Input) (Turn, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Turn{}, ErrEmptyInput
	}
	s, err := m.Open(ctx, in.SessionID)
	if err != nil {
		return Turn{}, err
	}

	s.lane.Lock()
	defer s.lane.Unlock()
	s.touch(m.cfg.Now())

	ctx, span := m.cfg.Tracer.Start(ctx, "session.turn",
		trace.WithAttributes(attribute.String("session_id", s.id)),
	)
	defer span.End()

	timed := m.cfg.Classifier.ClassifyTimed(ctx, in.Text)
	turn := Turn{SessionID: s.id, Classification: timed}
	span.SetAttributes(attribute.String("classify.category", string(timed.Result.Category)))

	if err := s.thread.Append(conversation.NewUserMessage(m.cfg.NewID(), in.Text, m.cfg.Now())); err != nil {
		return turn, err
	}

	if timed.Result.Layer == classify.LayerExact {
		if inv, ok := classify.ParseInvocation(in.Text); ok && m.cfg.Registry.Has(inv.Tool) {
			return m.direct(ctx, s, inv, turn)
		}
	}
	return m.runAgent(ctx, s, turn, in.OnEvent)
}

// direct turns a Tier 1 command into a single call. It still goes through
// the approval policy.
func (m *Manager) direct(ctx context.Context, s *Session, inv classify.Invocation, turn Turn) (Turn, error) {
	turn.Route = RouteDirect
	defer m.persist(ctx, s)

	c, err := s.machine.Open(toolcall.OpenRequest{
		ToolName:  inv.Tool,
		Arguments: inv.Arguments,
		Env:       m.env(s),
	})
	if err != nil {
		return turn, err
	}
	msg := conversation.NewAssistantMessage(m.cfg.NewID(), "", []*toolcall.Call{c}, m.cfg.Now())
	if err := s.thread.Append(msg); err != nil {
		return turn, err
	}

	snap, err := s.machine.Dispatch(ctx, c.ID(), m.cfg.Requester)
	turn.Calls = []toolcall.Snapshot{snap}
	turn.Content = snap.Content()
	turn.AwaitingApproval = snap.Status == toolcall.StatusPending
	s.setResumable(false)

	m.cfg.Logger.Info("direct tool call",
		"session_id", s.id,
		"call_id", snap.ID,
		"tool", snap.ToolName,
		"status", snap.Status,
	)
	return turn, err
}

func (m *Manager) runAgent(ctx context.Context, s *Session, turn Turn, onEvent func(agent.StreamEvent)) (Turn, error) {
	turn.Route = RouteAgent
	if m.cfg.Provider == nil {
		return turn, ErrNoProvider
	}
	defer m.persist(ctx, s)

	loop := agent.NewLoop(m.cfg.Provider, agent.NewToolExecutor(s.machine, m.cfg.Requester), m.cfg.Loop, agent.Options{
		Logger: m.cfg.Logger.With("session_id", s.id),
		Now:    m.cfg.Now,
		NewID:  m.cfg.NewID,
	})
	req := agent.Request{
		Thread:       s.thread,
		SystemPrompt: m.cfg.SystemPrompt,
		Tools:        m.cfg.Registry.Definitions(),
		Env:          m.env(s),
	}

	var (
		resp   agent.Response
		runErr error
	)
	if onEvent == nil {
		resp, runErr = loop.Run(ctx, req)
	} else {
		ch, err := loop.RunStream(ctx, req)
		if err != nil {
			return turn, err
		}
		for ev := range ch {
			onEvent(ev)
			if ev.Final != nil {
				resp = *ev.Final
			}
			if ev.Type == agent.StreamEventError {
				runErr = ev.Err
			}
		}
	}

	turn.Content = resp.Content
	turn.Calls = resp.Calls
	turn.StopReason = string(resp.StopReason)
	turn.Usage = resp.TotalUsage
	turn.AwaitingApproval = resp.StopReason == agent.StopReasonAwaitingApproval
	s.setResumable(turn.AwaitingApproval)

	if runErr != nil {
		m.cfg.Logger.Warn("agent turn ended with error",
			"session_id", s.id,
			"stop_reason", resp.StopReason,
			"error", runErr,
		)
	}
	return turn, runErr
}

// Resume continues an agent turn that stopped on a pending call, after the
// call was approved or rejected.
func (m *Manager) Resume(ctx context.Context, sessionID string, onEvent func(agent.StreamEvent)) (Turn, error) {
	s, err := m.Lookup(ctx, sessionID)
	if err != nil {
		return Turn{}, err
	}
	s.lane.Lock()
	defer s.lane.Unlock()

	if !s.isResumable() {
		return Turn{SessionID: s.id}, ErrNothingToResume
	}
	s.touch(m.cfg.Now())
	return m.runAgent(ctx, s, Turn{SessionID: s.id}, onEvent)
}

// Approve runs a pending call of the session.
func (m *Manager) Approve(ctx context.Context, sessionID, callID string) (toolcall.Snapshot, error) {
	s, err := m.Lookup(ctx, sessionID)
	if err != nil {
		return toolcall.Snapshot{}, err
	}
	s.lane.Lock()
	defer s.lane.Unlock()
	s.touch(m.cfg.Now())
	if err := s.nextInOrder(callID); err != nil {
		return toolcall.Snapshot{}, err
	}
	defer m.persist(ctx, s)

	return s.machine.Approve(ctx, callID)
}

// Reject rejects a pending call of the session. An empty reason uses the
// default rejection reason.
func (m *Manager) Reject(ctx context.Context, sessionID, callID, reason string) (toolcall.Snapshot, error) {
	s, err := m.Lookup(ctx, sessionID)
	if err != nil {
		return toolcall.Snapshot{}, err
	}
	s.lane.Lock()
	defer s.lane.Unlock()
	s.touch(m.cfg.Now())
	defer m.persist(ctx, s)

	return s.machine.Reject(callID, reason)
}

// Supervise applies a sub-agent's terminal summary to the call that spawned
// it. It does not take the session lane: the spawning call may be running
// inside a turn that holds it.
func (m *Manager) Supervise(sessionID, callID string, res tool.Result) {
	s, ok, _ := m.live(sessionID)
	if !ok {
		m.cfg.Logger.Warn("supervisor result for unknown session",
			"session_id", sessionID,
			"call_id", callID,
		)
		return
	}
	applied, err := s.machine.ApplySupervisorResult(callID, res)
	if err != nil {
		m.cfg.Logger.Warn("supervisor result not applied",
			"session_id", sessionID,
			"call_id", callID,
			"error", err,
		)
		return
	}
	if applied {
		m.persist(context.Background(), s)
	}
}

// Sessions returns the ids of live sessions, sorted.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Prune unloads sessions idle for longer than maxIdle that have no pending
// call and no turn in progress. Their threads stay in the store.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := m.cfg.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, s := range m.sessions {
		if !s.LastActive().Before(cutoff) || len(s.machine.Pending()) > 0 {
			continue
		}
		if !s.lane.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.lane.Unlock()
		pruned++
	}
	return pruned
}

// Close stops accepting sessions.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) env(s *Session) tool.ExecutionEnv {
	return tool.ExecutionEnv{
		SessionID: s.id,
		ThreadID:  s.thread.ID(),
		RootPath:  s.rootPath,
	}
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if err := conversation.Save(context.WithoutCancel(ctx), m.cfg.Store, s.thread); err != nil {
		m.cfg.Logger.Error("failed to persist thread",
			"session_id", s.id,
			"thread_id", s.thread.ID(),
			"error", err,
		)
	}
}
