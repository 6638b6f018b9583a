package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/toolpipe/internal/agent"
	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/tool"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// DefaultAgentTimeout bounds an in-process agent run.
const DefaultAgentTimeout = 5 * time.Minute

// DefaultAgentPrompt is the system prompt of in-process agents.
const DefaultAgentPrompt = "You are a focused sub-agent. Complete the task with the tools available " +
	"and reply with a short summary of what you did and found."

// LoopLauncherConfig configures a LoopLauncher.
type LoopLauncherConfig struct {
	Provider provider.Provider

	// Registry holds the tools agents may call. Agent-category tools are
	// never offered to an agent.
	Registry *tool.Registry

	// Policy decides approval for agent calls. Calls that would need an
	// interactive decision fail the agent, since nobody can answer them.
	Policy *approval.Policy

	Loop         agent.LoopConfig
	SystemPrompt string
	Timeout      time.Duration
	Logger       *slog.Logger
	NewID        func() string
}

func (c LoopLauncherConfig) withDefaults() LoopLauncherConfig {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultAgentPrompt
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultAgentTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// LoopLauncher runs each agent as an in-process agent loop on its own
// thread and state machine.
type LoopLauncher struct {
	cfg LoopLauncherConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewLoopLauncher creates a LoopLauncher.
func NewLoopLauncher(cfg LoopLauncherConfig) *LoopLauncher {
	return &LoopLauncher{
		cfg:     cfg.withDefaults(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Launch starts the agent in a goroutine. The first status event may be
// delivered before Launch returns.
func (l *LoopLauncher) Launch(ctx context.Context, req SpawnRequest, sink func(Event)) (string, error) {
	if l.cfg.Provider == nil || l.cfg.Registry == nil {
		return "", errors.New("subagent: loop launcher needs a provider and a registry")
	}
	id := l.cfg.NewID()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.cfg.Timeout
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	l.mu.Lock()
	l.cancels[id] = cancel
	l.mu.Unlock()

	go l.run(runCtx, id, req, sink)
	return id, nil
}

// Cancel stops a running agent.
func (l *LoopLauncher) Cancel(id string) error {
	l.mu.Lock()
	cancel, ok := l.cancels[id]
	delete(l.cancels, id)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cancel()
	return nil
}

func (l *LoopLauncher) run(ctx context.Context, id string, req SpawnRequest, sink func(Event)) {
	defer func() {
		l.mu.Lock()
		if cancel, ok := l.cancels[id]; ok {
			cancel()
			delete(l.cancels, id)
		}
		l.mu.Unlock()
	}()

	sink(Event{AgentID: id, Status: StatusRunning, Progress: "started"})

	machine := toolcall.NewMachine(toolcall.MachineConfig{
		Registry: l.cfg.Registry,
		Policy:   l.cfg.Policy,
		Logger:   l.cfg.Logger.With("agent_id", id),
	})
	unsubscribe := machine.Subscribe(func(ev toolcall.Event) {
		if ev.To.Terminal() && ev.From != ev.To {
			sink(Event{AgentID: id, Status: StatusRunning, Progress: fmt.Sprintf("%s %s", ev.ToolName, ev.To)})
		}
	})
	defer unsubscribe()

	thread := conversation.NewThread(conversation.ThreadInfo{
		ID:        l.cfg.NewID(),
		SessionID: req.SessionID,
		CreatedAt: time.Now(),
	})
	if err := thread.Append(conversation.NewUserMessage(l.cfg.NewID(), req.Task, time.Now())); err != nil {
		sink(Event{AgentID: id, Status: StatusFailed, Error: err.Error()})
		return
	}

	loop := agent.NewLoop(l.cfg.Provider, agent.NewToolExecutor(machine, nil), l.cfg.Loop, agent.Options{
		Logger: l.cfg.Logger.With("agent_id", id),
		NewID:  l.cfg.NewID,
	})
	resp, err := loop.Run(ctx, agent.Request{
		Thread:       thread,
		SystemPrompt: l.cfg.SystemPrompt,
		Tools:        l.definitions(),
		Env: tool.ExecutionEnv{
			SessionID: req.SessionID,
			ThreadID:  thread.ID(),
			RootPath:  req.RootPath,
			AgentID:   id,
		},
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded) || resp.StopReason == agent.StopReasonTimeout:
		sink(Event{AgentID: id, Status: StatusTimeout, Error: "agent timed out"})
	case err != nil:
		sink(Event{AgentID: id, Status: StatusFailed, Error: err.Error()})
	case resp.StopReason == agent.StopReasonAwaitingApproval:
		pending := machine.Pending()
		name := ""
		if len(pending) > 0 {
			name = pending[0].ToolName
		}
		sink(Event{AgentID: id, Status: StatusFailed, Error: "agent needs approval for " + name})
	default:
		sink(Event{AgentID: id, Status: StatusCompleted, Summary: resp.Content})
	}
}

func (l *LoopLauncher) definitions() []provider.ToolDefinition {
	return l.cfg.Registry.Definitions(tool.CategoryFS, tool.CategoryShell, tool.CategoryCustom)
}

// Interface guard.
var _ Launcher = (*LoopLauncher)(nil)
