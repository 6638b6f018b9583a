package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/history"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// Sentinel errors for agent loop termination.
var (
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
	ErrNoThread             = errors.New("agent: request has no thread")
)

// Rejection reasons written for calls the loop abandons without running.
const (
	reasonBudget      = "Token budget exceeded."
	reasonLoop        = "Repeated tool call detected."
	reasonInterrupted = "Response stream interrupted."
)

// Options carries the optional collaborators of a Loop.
type Options struct {
	Logger *slog.Logger

	// Now overrides time.Now for testing.
	Now func() time.Time

	// NewID generates message ids. Defaults to uuid.NewString.
	NewID func() string
}

// Loop implements the ReAct (Reason + Act) reasoning loop.
type Loop struct {
	provider provider.Provider
	executor *ToolExecutor
	config   LoopConfig
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewLoop creates a Loop with the given provider, executor, and config.
func NewLoop(p provider.Provider, executor *ToolExecutor, cfg LoopConfig, opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Loop{
		provider: p,
		executor: executor,
		config:   cfg.withDefaults(),
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// turn is one model response with its calls already tracked by the machine.
type turn struct {
	content string
	calls   []*toolcall.Call
	usage   provider.TokenUsage
}

// Run executes the ReAct loop synchronously and returns the final response.
//
// A context.WithTimeout is applied using l.config.Timeout. If the caller's
// context already carries a shorter deadline, the shorter one takes effect.
//
// Run stops with StopReasonAwaitingApproval and a nil error when a call is
// left pending for an out-of-band decision. Calling Run again on the same
// thread after the decision resumes the conversation.
func (l *Loop) Run(ctx context.Context, req Request) (Response, error) {
	return l.run(ctx, req, nil)
}

// RunStream executes the ReAct loop and streams events over a channel.
// The channel is closed after a StreamEventDone or StreamEventError event.
func (l *Loop) RunStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if req.Thread == nil {
		return nil, ErrNoThread
	}
	ch := make(chan StreamEvent, 16)

	go func() {
		defer close(ch)

		emit := func(ev StreamEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		resp, err := l.run(ctx, req, emit)
		if err != nil {
			emit(StreamEvent{Type: StreamEventError, Err: err, Final: &resp})
			return
		}
		emit(StreamEvent{Type: StreamEventDone, Content: resp.Content, Final: &resp})
	}()

	return ch, nil
}

// run drives the loop. A non-nil emit selects the streaming provider path.
func (l *Loop) run(ctx context.Context, req Request, emit func(StreamEvent)) (Response, error) {
	if req.Thread == nil {
		return Response{StopReason: StopReasonError}, ErrNoThread
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	detector := newLoopDetector(l.config.LoopThreshold)
	tracker := newTokenTracker(l.config.TokenBudget)

	var dispatched []toolcall.Snapshot
	stop := func(iter int, content string, reason StopReason) Response {
		return Response{
			Content:    content,
			Calls:      dispatched,
			TotalUsage: tracker.total(),
			Iterations: iter,
			StopReason: reason,
		}
	}

	for i := 0; i < l.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return stop(i, "", ctxStopReason(err)), err
		}
		if tracker.exceeded() {
			return stop(i, "", StopReasonTokenBudget), ErrTokenBudgetExceeded
		}
		if unresolved := history.Unresolved(req.Thread.Messages()); len(unresolved) > 0 {
			snaps, err := l.executor.Redispatch(ctx, unresolved, toolEnd(emit))
			dispatched = append(dispatched, snaps...)
			if err != nil {
				return stop(i, "", ctxStopReason(err)), err
			}
			if left := history.Unresolved(req.Thread.Messages()); len(left) > 0 {
				l.logger.Debug("agent loop waiting on unresolved calls",
					"thread_id", req.Thread.ID(),
					"count", len(left),
				)
				return stop(i, "", StopReasonAwaitingApproval), nil
			}
		}

		messages, err := l.messages(req)
		if err != nil {
			return stop(i, "", StopReasonError), err
		}
		creq := provider.CompletionRequest{Messages: messages, Tools: req.Tools}

		var t turn
		if emit != nil {
			t, err = l.streamTurn(ctx, req, creq, emit)
		} else {
			t, err = l.completeTurn(ctx, req, creq)
		}
		if err != nil {
			return stop(i, "", StopReasonError), err
		}
		tracker.add(t.usage)

		msg := conversation.NewAssistantMessage(l.newID(), t.content, t.calls, l.now())
		if err := req.Thread.Append(msg); err != nil {
			l.abandon(t.calls, reasonInterrupted)
			return stop(i+1, t.content, StopReasonError), err
		}

		// No tool calls: the model is done reasoning.
		if len(t.calls) == 0 {
			return stop(i+1, t.content, StopReasonComplete), nil
		}

		if tracker.exceeded() {
			l.abandon(t.calls, reasonBudget)
			return stop(i+1, t.content, StopReasonTokenBudget), ErrTokenBudgetExceeded
		}
		if l.looping(detector, t.calls) {
			l.abandon(t.calls, reasonLoop)
			return stop(i+1, t.content, StopReasonLoopDetected), ErrLoopDetected
		}

		snaps, err := l.executor.Execute(ctx, t.calls, toolEnd(emit))
		dispatched = append(dispatched, snaps...)
		if err != nil {
			return stop(i+1, t.content, ctxStopReason(err)), err
		}
		if n := len(snaps); n > 0 && snaps[n-1].Status == toolcall.StatusPending {
			return stop(i+1, t.content, StopReasonAwaitingApproval), nil
		}
	}

	return stop(l.config.MaxIterations, "", StopReasonMaxIterations), ErrMaxIterationsReached
}

// toolEnd adapts emit to the executor's per-call callback.
func toolEnd(emit func(StreamEvent)) func(toolcall.Snapshot) {
	if emit == nil {
		return nil
	}
	return func(s toolcall.Snapshot) {
		emit(StreamEvent{Type: StreamEventToolEnd, Call: &s})
	}
}

// messages builds the model request history for the thread.
func (l *Loop) messages(req Request) ([]provider.LLMMessage, error) {
	msgs, err := history.Build(req.Thread.Messages())
	if err != nil {
		return nil, err
	}
	if req.SystemPrompt == "" {
		return msgs, nil
	}
	return append([]provider.LLMMessage{{
		Role:    provider.MessageRoleSystem,
		Content: req.SystemPrompt,
	}}, msgs...), nil
}

func (l *Loop) completeTurn(ctx context.Context, req Request, creq provider.CompletionRequest) (turn, error) {
	resp, err := l.provider.Complete(ctx, creq)
	if err != nil {
		return turn{}, err
	}

	t := turn{content: resp.Content, usage: resp.Usage}
	for _, tc := range resp.ToolCalls {
		c, err := l.open(toolcall.OpenRequest{
			ID:        tc.ID,
			ToolName:  tc.Name,
			Arguments: tc.Arguments,
			Env:       req.Env,
		})
		if err != nil {
			l.abandon(t.calls, reasonInterrupted)
			return turn{}, err
		}
		t.calls = append(t.calls, c)
	}
	return t, nil
}

// streamTurn consumes one streamed response. Calls are opened as partial on
// their first fragment and finalized once the stream ends.
func (l *Loop) streamTurn(ctx context.Context, req Request, creq provider.CompletionRequest, emit func(StreamEvent)) (turn, error) {
	ch, err := l.provider.Stream(ctx, creq)
	if err != nil {
		return turn{}, err
	}

	var (
		t       turn
		content strings.Builder
		byIndex = make(map[int]*toolcall.Call)
	)
	fail := func(err error) (turn, error) {
		//nolint:revive // drain so the provider goroutine can exit
		for range ch {
		}
		for _, c := range t.calls {
			_ = l.executor.Machine().Finalize(c.ID())
		}
		l.abandon(t.calls, reasonInterrupted)
		return turn{}, err
	}

	for chunk := range ch {
		if chunk.Err != nil {
			return fail(chunk.Err)
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			emit(StreamEvent{Type: StreamEventText, Content: chunk.Content})
		}
		for _, d := range chunk.ToolCalls {
			c, ok := byIndex[d.Index]
			if !ok {
				c, err = l.open(toolcall.OpenRequest{
					ID:       d.ID,
					ToolName: d.Name,
					Partial:  true,
					Env:      req.Env,
				})
				if err != nil {
					return fail(err)
				}
				byIndex[d.Index] = c
				t.calls = append(t.calls, c)
				snap := c.Snapshot()
				emit(StreamEvent{Type: StreamEventToolStart, Call: &snap})
			}
			if d.Arguments != "" {
				if err := l.executor.Machine().AppendArguments(c.ID(), d.Arguments); err != nil {
					return fail(err)
				}
			}
		}
		if chunk.Usage != nil {
			t.usage = *chunk.Usage
			emit(StreamEvent{Type: StreamEventUsage, Usage: chunk.Usage})
		}
	}

	for _, c := range t.calls {
		if err := l.executor.Machine().Finalize(c.ID()); err != nil {
			return fail(err)
		}
	}
	t.content = content.String()
	return t, nil
}

// open tracks a new call. A provider id that collides with an existing call
// is replaced by a generated one.
func (l *Loop) open(req toolcall.OpenRequest) (*toolcall.Call, error) {
	c, err := l.executor.Machine().Open(req)
	if errors.Is(err, toolcall.ErrDuplicateCall) {
		l.logger.Warn("duplicate tool call id from provider, generating a new one",
			"call_id", req.ID,
			"tool", req.ToolName,
		)
		req.ID = ""
		return l.executor.Machine().Open(req)
	}
	return c, err
}

func (l *Loop) looping(d *loopDetector, calls []*toolcall.Call) bool {
	hit := false
	for _, c := range calls {
		if d.record(c.Snapshot()) {
			hit = true
		}
	}
	return hit
}

// abandon rejects calls the loop will not dispatch so no call is left
// pending in a thread nobody will resume.
func (l *Loop) abandon(calls []*toolcall.Call, reason string) {
	for _, c := range calls {
		if c.Status() != toolcall.StatusPending || c.IsPartial() {
			continue
		}
		if _, err := l.executor.Machine().Reject(c.ID(), reason); err != nil {
			l.logger.Warn("failed to abandon tool call", "call_id", c.ID(), "error", err)
		}
	}
}

func ctxStopReason(err error) StopReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return StopReasonTimeout
	}
	return StopReasonError
}
