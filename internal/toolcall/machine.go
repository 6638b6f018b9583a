package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/hook"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/tool"
)

// Auto-approval reasons reported by Evaluate.
const (
	ReasonNotRequired  = "not_required"
	ReasonModeAlways   = "mode_always"
	ReasonSessionTrust = "session_trust"
	ReasonUnknownTool  = "unknown_tool"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	// Auto is true when the call may run without asking the user.
	Auto bool

	// Reason names why the call was auto-approved. Empty when Auto is false.
	Reason string
}

// Event describes one status change or argument update of a call.
type Event struct {
	CallID    string    `json:"call_id"`
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name"`
	From      Status    `json:"from,omitempty"`
	To        Status    `json:"to"`
	Partial   bool      `json:"is_partial,omitempty"`
	At        time.Time `json:"at"`
}

// MachineConfig configures a Machine.
type MachineConfig struct {
	// Registry executes approved calls. Required.
	Registry *tool.Registry

	// Policy decides auto-approval. Nil selects a session-once policy with
	// a private trust store.
	Policy *approval.Policy

	// Hooks run around execution. Optional.
	Hooks *hook.Pipeline

	// ApprovalTimeout bounds an interactive approval in Dispatch.
	// Zero waits until the context is done.
	ApprovalTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer

	// Now overrides time.Now for testing.
	Now func() time.Time

	// NewID generates call ids. Defaults to uuid.NewString.
	NewID func() string
}

func (c MachineConfig) withDefaults() MachineConfig {
	if c.Policy == nil {
		c.Policy = approval.NewPolicy(approval.PolicyConfig{Logger: c.Logger, Metrics: c.Metrics})
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

// Machine owns the calls of one session and is the only writer of their
// state. Calls are kept in creation order.
type Machine struct {
	cfg    MachineConfig
	waiter *approval.PendingApproval

	mu        sync.RWMutex
	calls     map[string]*Call
	order     []string
	listeners map[int]func(Event)
	nextSub   int
}

// NewMachine creates a Machine.
func NewMachine(cfg MachineConfig) *Machine {
	return &Machine{
		cfg:       cfg.withDefaults(),
		waiter:    approval.NewPendingApproval(),
		calls:     make(map[string]*Call),
		listeners: make(map[int]func(Event)),
	}
}

// Policy returns the approval policy in use.
func (m *Machine) Policy() *approval.Policy { return m.cfg.Policy }

// Subscribe registers fn for every call event. Listeners run synchronously
// on the goroutine that caused the change and must not block.
func (m *Machine) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// OpenRequest describes a new call.
type OpenRequest struct {
	// ID is the provider-assigned call id. Generated when empty.
	ID string

	ToolName  string
	Arguments json.RawMessage

	// Partial marks a call whose arguments will keep streaming in through
	// AppendArguments until Finalize.
	Partial bool

	Env tool.ExecutionEnv
}

// Open creates a pending call and starts tracking it.
func (m *Machine) Open(req OpenRequest) (*Call, error) {
	id := req.ID
	if id == "" {
		id = m.cfg.NewID()
	}
	now := m.cfg.Now()
	c := &Call{
		id:        id,
		toolName:  req.ToolName,
		env:       req.Env,
		status:    StatusPending,
		partial:   req.Partial,
		createdAt: now,
		updatedAt: now,
	}
	c.env.CallID = id
	c.args.Write(req.Arguments)

	if err := m.Track(c); err != nil {
		return nil, err
	}
	m.emit(Event{
		CallID:    c.id,
		SessionID: c.env.SessionID,
		ToolName:  c.toolName,
		To:        StatusPending,
		Partial:   c.partial,
		At:        now,
	})
	m.cfg.Metrics.ObserveTransition(c.toolName, string(StatusPending))
	return c, nil
}

// Track adds an existing call, such as one restored from storage.
func (m *Machine) Track(c *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calls[c.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCall, c.id)
	}
	m.calls[c.id] = c
	m.order = append(m.order, c.id)
	return nil
}

// Call returns the tracked call with the given id.
func (m *Machine) Call(id string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.calls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	return c, nil
}

// Get returns a snapshot of the call with the given id.
func (m *Machine) Get(id string) (Snapshot, error) {
	c, err := m.Call(id)
	if err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Snapshots returns every tracked call in creation order.
func (m *Machine) Snapshots() []Snapshot {
	m.mu.RLock()
	calls := make([]*Call, 0, len(m.order))
	for _, id := range m.order {
		calls = append(calls, m.calls[id])
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Snapshot())
	}
	return out
}

// Pending returns the calls waiting for a user decision, in creation order.
// Partial calls are never included.
func (m *Machine) Pending() []Snapshot {
	all := m.Snapshots()
	return slices.DeleteFunc(all, func(s Snapshot) bool {
		return s.Status != StatusPending || s.Partial
	})
}

// AppendArguments adds a streamed fragment to a partial call's arguments.
func (m *Machine) AppendArguments(id, fragment string) error {
	c, err := m.Call(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.partial {
		return fmt.Errorf("%w: %s", ErrNotPartial, id)
	}
	c.args.WriteString(fragment)
	c.updatedAt = m.cfg.Now()
	return nil
}

// Finalize marks the call's arguments as complete. Only a finalized call
// can be surfaced for approval or executed.
func (m *Machine) Finalize(id string) error {
	c, err := m.Call(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.partial {
		c.mu.Unlock()
		return nil
	}
	c.partial = false
	c.updatedAt = m.cfg.Now()
	if text := c.args.String(); text != "" {
		if args := provider.ArgumentsFromText(text); string(args) != text {
			c.args.Reset()
			c.args.Write(args)
		}
	}
	ev := Event{
		CallID:    c.id,
		SessionID: c.env.SessionID,
		ToolName:  c.toolName,
		From:      c.status,
		To:        c.status,
		At:        c.updatedAt,
	}
	c.mu.Unlock()

	m.emit(ev)
	return nil
}

// Surface builds the approval request for a pending call. A partial call is
// refused before anything else is checked.
func (m *Machine) Surface(id string) (approval.Request, error) {
	c, err := m.Call(id)
	if err != nil {
		return approval.Request{}, err
	}
	snap := c.Snapshot()
	if snap.Partial {
		return approval.Request{}, fmt.Errorf("%w: %s", ErrPartial, id)
	}
	if snap.Status != StatusPending {
		return approval.Request{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, snap.Status)
	}

	req := approval.Request{
		ID:        snap.ID,
		SessionID: snap.Env.SessionID,
		ToolName:  snap.ToolName,
		Arguments: snap.ArgumentsJSON(),
	}
	if t, err := m.cfg.Registry.Get(snap.ToolName); err == nil {
		req.Description = t.Description()
		req.Dangerous = t.IsDangerous()
	}
	return req, nil
}

// Evaluate decides whether a pending call may run without asking the user.
func (m *Machine) Evaluate(id string) (Decision, error) {
	c, err := m.Call(id)
	if err != nil {
		return Decision{}, err
	}
	snap := c.Snapshot()
	if snap.Partial {
		return Decision{}, fmt.Errorf("%w: %s", ErrPartial, id)
	}
	if snap.Status != StatusPending {
		return Decision{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, snap.Status)
	}

	t, err := m.cfg.Registry.Get(snap.ToolName)
	if err != nil {
		// Nothing can run; executing yields a not_found result the model sees.
		return Decision{Auto: true, Reason: ReasonUnknownTool}, nil
	}
	if !t.RequiresApproval() {
		return Decision{Auto: true, Reason: ReasonNotRequired}, nil
	}
	if m.cfg.Policy.ShouldAutoApprove(snap.Env.SessionID) {
		if m.cfg.Policy.Mode() == approval.ModeAlways {
			return Decision{Auto: true, Reason: ReasonModeAlways}, nil
		}
		return Decision{Auto: true, Reason: ReasonSessionTrust}, nil
	}
	return Decision{}, nil
}

// Dispatch drives a pending call to a decision. Auto-approved calls run
// immediately. Otherwise requester is asked; with a nil requester the call
// stays pending for a later Approve or Reject. A timed-out request rejects
// the call.
func (m *Machine) Dispatch(ctx context.Context, id string, requester approval.Requester) (Snapshot, error) {
	c, err := m.Call(id)
	if err != nil {
		return Snapshot{}, err
	}
	d, err := m.Evaluate(id)
	if err != nil {
		return c.Snapshot(), err
	}
	if d.Auto {
		return m.approve(ctx, c, d)
	}
	if requester == nil {
		return c.Snapshot(), nil
	}

	req, err := m.Surface(id)
	if err != nil {
		return c.Snapshot(), err
	}
	resp, err := m.waiter.Await(ctx, requester, req, m.cfg.ApprovalTimeout)
	switch {
	case errors.Is(err, approval.ErrApprovalTimeout):
		return m.Reject(id, resp.Reason)
	case err != nil:
		return c.Snapshot(), err
	case resp.Approved:
		return m.approve(ctx, c, Decision{})
	default:
		return m.Reject(id, resp.Reason)
	}
}

// Approve records an explicit user approval and runs the call to a
// terminal state. The handler is not cancelled when ctx is.
func (m *Machine) Approve(ctx context.Context, id string) (Snapshot, error) {
	c, err := m.Call(id)
	if err != nil {
		return Snapshot{}, err
	}
	return m.approve(ctx, c, Decision{})
}

func (m *Machine) approve(ctx context.Context, c *Call, d Decision) (Snapshot, error) {
	if err := m.advance(c, StatusApproved); err != nil {
		return c.Snapshot(), err
	}

	decision := approval.Decision{
		SessionID: c.env.SessionID,
		CallID:    c.id,
		ToolName:  c.toolName,
		Reason:    d.Reason,
	}
	if d.Auto {
		m.cfg.Policy.RecordAutoApproval(decision)
	} else {
		m.cfg.Policy.RecordApproval(decision)
	}

	return m.execute(ctx, c)
}

// Reject moves a pending call to rejected. The reason becomes the content
// of the call's tool-role message; an empty reason uses
// DefaultRejectionReason.
func (m *Machine) Reject(id, reason string) (Snapshot, error) {
	c, err := m.Call(id)
	if err != nil {
		return Snapshot{}, err
	}
	if reason == "" {
		reason = DefaultRejectionReason
	}

	c.mu.Lock()
	if c.partial {
		c.mu.Unlock()
		return c.Snapshot(), fmt.Errorf("%w: %s", ErrPartial, id)
	}
	if !CanTransition(c.status, StatusRejected) {
		from := c.status
		c.mu.Unlock()
		return c.Snapshot(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusRejected)
	}
	c.status = StatusRejected
	c.rejection = reason
	c.updatedAt = m.cfg.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	m.cfg.Policy.RecordRejection(approval.Decision{
		SessionID: snap.Env.SessionID,
		CallID:    snap.ID,
		ToolName:  snap.ToolName,
		Reason:    reason,
	})
	m.changed(snap, StatusPending)
	m.cfg.Logger.Info("tool call rejected",
		"call_id", snap.ID,
		"tool", snap.ToolName,
		"session_id", snap.Env.SessionID,
	)
	return snap, nil
}

// ApplySupervisorResult records a terminal result reported by a supervising
// unit. It only applies to calls that are approved or running and have no
// result yet; a result written by direct execution is never overwritten.
// It reports whether the result was applied.
func (m *Machine) ApplySupervisorResult(id string, res tool.Result) (bool, error) {
	c, err := m.Call(id)
	if err != nil {
		return false, err
	}

	switch st := c.Status(); st {
	case StatusPending:
		return false, fmt.Errorf("%w: %s is pending", ErrInvalidTransition, id)
	case StatusApproved:
		if err := m.advance(c, StatusRunning); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return false, err
		}
	}
	return m.settle(c, res), nil
}

func (m *Machine) execute(ctx context.Context, c *Call) (Snapshot, error) {
	if err := m.advance(c, StatusRunning); err != nil {
		return c.Snapshot(), err
	}
	snap := c.Snapshot()

	// A running call runs to completion.
	ctx = context.WithoutCancel(ctx)
	ctx, span := m.cfg.Tracer.Start(ctx, "toolcall.execute",
		trace.WithAttributes(
			attribute.String("tool", snap.ToolName),
			attribute.String("call_id", snap.ID),
			attribute.String("session_id", snap.Env.SessionID),
		),
	)
	defer span.End()

	hctx := &hook.Context{
		CallID:    snap.ID,
		ToolName:  snap.ToolName,
		Arguments: snap.ArgumentsJSON(),
		Env:       snap.Env,
		Status:    string(StatusRunning),
		Metadata:  make(map[string]any),
		Logger:    m.cfg.Logger,
	}

	start := m.cfg.Now()
	var res tool.Result
	if m.cfg.Hooks.RunBeforeExecute(ctx, hctx) == hook.ActionBlock {
		reason := hctx.BlockReason
		if reason == "" {
			reason = "blocked by policy hook"
		}
		res = tool.Failure(tool.FailureBlocked, reason)
	} else {
		res = m.cfg.Registry.Execute(ctx, snap.ToolName, hctx.Arguments, snap.Env)
		hctx.Result = &res
		hctx.Duration = m.cfg.Now().Sub(start)
		if m.cfg.Hooks.RunAfterExecute(ctx, hctx) == hook.ActionModify && hctx.Result != nil {
			res = *hctx.Result
		}
	}
	elapsed := m.cfg.Now().Sub(start)
	m.cfg.Metrics.ObserveExecution(snap.ToolName, elapsed)

	if !m.settle(c, res) {
		m.cfg.Logger.Debug("tool call already settled by supervisor",
			"call_id", snap.ID,
			"tool", snap.ToolName,
		)
	}

	final := c.Snapshot()
	if final.Result != nil && !final.Result.Success {
		span.SetStatus(codes.Error, final.Result.Error)
	}
	span.SetAttributes(attribute.String("status", string(final.Status)))

	hctx.Status = string(final.Status)
	hctx.Result = final.Result
	hctx.Duration = elapsed
	m.cfg.Hooks.RunAfterSettle(ctx, hctx)

	m.cfg.Logger.Info("tool call settled",
		"call_id", final.ID,
		"tool", final.ToolName,
		"status", final.Status,
		"duration", elapsed,
	)
	return final, nil
}

// advance performs a non-terminal transition. Partial calls cannot move.
func (m *Machine) advance(c *Call, to Status) error {
	c.mu.Lock()
	if c.partial {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPartial, c.id)
	}
	from := c.status
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.status = to
	c.updatedAt = m.cfg.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	m.changed(snap, from)
	return nil
}

// settle writes the terminal result of a running call. The first write
// wins; later writes are ignored and settle returns false.
func (m *Machine) settle(c *Call, res tool.Result) bool {
	to := StatusCompleted
	if !res.Success {
		to = StatusFailed
	}

	c.mu.Lock()
	if c.result != nil || c.status != StatusRunning {
		c.mu.Unlock()
		return false
	}
	c.status = to
	c.result = &res
	c.updatedAt = m.cfg.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	m.changed(snap, StatusRunning)
	return true
}

func (m *Machine) changed(snap Snapshot, from Status) {
	m.cfg.Metrics.ObserveTransition(snap.ToolName, string(snap.Status))
	m.emit(Event{
		CallID:    snap.ID,
		SessionID: snap.Env.SessionID,
		ToolName:  snap.ToolName,
		From:      from,
		To:        snap.Status,
		At:        snap.UpdatedAt,
	})
}

func (m *Machine) emit(ev Event) {
	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Err reports a non-success terminal outcome as an error: ErrApprovalDenied
// for rejected calls and tool.ErrToolExecutionFailed for failed ones.
func (s Snapshot) Err() error {
	switch s.Status {
	case StatusRejected:
		return fmt.Errorf("%w: %s", ErrApprovalDenied, s.RejectionReason)
	case StatusFailed:
		msg := ""
		if s.Result != nil {
			msg = s.Result.Error
		}
		return fmt.Errorf("%w: %s", tool.ErrToolExecutionFailed, msg)
	}
	return nil
}
