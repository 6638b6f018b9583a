package hook

import (
	"context"
	"slices"
	"sync"
)

// Pipeline manages hook registration and execution.
// Hooks are grouped by position and sorted by (priority, registration order).
// Thread-safe: registrations use a write lock, executions use a read lock.
// A nil *Pipeline runs no hooks.
type Pipeline struct {
	mu    sync.RWMutex
	hooks map[Position][]Hook
	// order tracks registration sequence for stable sorting.
	order map[Hook]int
	seq   int
}

// NewPipeline creates a new empty hook pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		hooks: make(map[Position][]Hook),
		order: make(map[Hook]int),
	}
}

// Register adds a hook to the pipeline. Hooks within the same position
// are sorted by priority (ascending), with registration order as tiebreaker.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := h.Position()
	p.order[h] = p.seq
	p.seq++

	p.hooks[pos] = append(p.hooks[pos], h)
	slices.SortStableFunc(p.hooks[pos], func(a, b Hook) int {
		if a.Priority() != b.Priority() {
			return a.Priority() - b.Priority()
		}
		return p.order[a] - p.order[b]
	})
}

func (p *Pipeline) at(pos Position) []Hook {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hooks[pos]
}

// RunBeforeExecute executes all BeforeExecute hooks in order.
// Short-circuits on ActionBlock. Errors are logged but don't stop execution.
func (p *Pipeline) RunBeforeExecute(ctx context.Context, hctx *Context) Action {
	hctx.Position = BeforeExecute
	for _, h := range p.at(BeforeExecute) {
		action, err := h.Execute(ctx, hctx)
		if err != nil && hctx.Logger != nil {
			hctx.Logger.Warn("hook: before_execute error",
				"error", err,
				"priority", h.Priority(),
				"call_id", hctx.CallID,
			)
		}
		if action == ActionBlock {
			return ActionBlock
		}
	}
	return ActionContinue
}

// RunAfterExecute executes all AfterExecute hooks in order.
// Returns ActionModify if any hook signaled modification. Errors are logged.
func (p *Pipeline) RunAfterExecute(ctx context.Context, hctx *Context) Action {
	hctx.Position = AfterExecute
	modified := false
	for _, h := range p.at(AfterExecute) {
		action, err := h.Execute(ctx, hctx)
		if err != nil && hctx.Logger != nil {
			hctx.Logger.Warn("hook: after_execute error",
				"error", err,
				"priority", h.Priority(),
				"call_id", hctx.CallID,
			)
		}
		if action == ActionModify {
			modified = true
		}
	}
	if modified {
		return ActionModify
	}
	return ActionContinue
}

// RunAfterSettle executes all AfterSettle hooks. Fire-and-forget: errors
// are logged internally and never propagated to the caller.
func (p *Pipeline) RunAfterSettle(ctx context.Context, hctx *Context) {
	hctx.Position = AfterSettle
	for _, h := range p.at(AfterSettle) {
		if _, err := h.Execute(ctx, hctx); err != nil && hctx.Logger != nil {
			hctx.Logger.Warn("hook: after_settle error",
				"error", err,
				"priority", h.Priority(),
				"call_id", hctx.CallID,
			)
		}
	}
}
