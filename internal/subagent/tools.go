package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flemzord/toolpipe/internal/tool"
)

// RegisterTools registers agent_spawn, agent_status and agent_kill.
func RegisterTools(registry *tool.Registry, mgr *Manager) error {
	for _, t := range []tool.Tool{
		&spawnTool{mgr: mgr},
		&statusTool{mgr: mgr},
		&killTool{mgr: mgr},
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// --- agent_spawn ---

type spawnTool struct{ mgr *Manager }

type spawnArgs struct {
	Task           string `json:"task"`
	Wait           bool   `json:"wait,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (t *spawnTool) Name() string { return "agent_spawn" }
func (t *spawnTool) Description() string {
	return "Start a sub-agent on a self-contained task. With wait, returns the agent's summary."
}
func (t *spawnTool) Category() tool.Category { return tool.CategoryAgent }
func (t *spawnTool) RequiresApproval() bool  { return true }
func (t *spawnTool) IsDangerous() bool       { return false }

func (t *spawnTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "minLength": 1, "description": "What the sub-agent should do."},
			"wait": {"type": "boolean", "description": "Block until the sub-agent finishes."},
			"timeout_seconds": {"type": "integer", "minimum": 1, "description": "Optional run timeout."}
		},
		"required": ["task"],
		"additionalProperties": false
	}`)
}

func (t *spawnTool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	var a spawnArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	snap, err := t.mgr.Spawn(ctx, SpawnRequest{
		SessionID:  env.SessionID,
		CallID:     env.CallID,
		Task:       a.Task,
		RootPath:   env.RootPath,
		Timeout:    time.Duration(a.TimeoutSeconds) * time.Second,
		IsSubAgent: env.AgentID != "",
	})
	if err != nil {
		return tool.Output{}, err
	}

	if a.Wait && !snap.Status.Terminal() {
		snap, err = t.mgr.Wait(ctx, snap.ID)
		if err != nil {
			return tool.Output{}, err
		}
	}
	if !snap.Status.Terminal() {
		return tool.Output{Content: fmt.Sprintf("spawned agent %s", snap.ID), Data: snap}, nil
	}

	res := Summarize(snap)
	if !res.Success {
		return tool.Output{Content: res.Error, Data: snap, IsError: true}, nil
	}
	return tool.Output{Content: res.Output, Data: snap}, nil
}

// --- agent_status ---

type statusTool struct{ mgr *Manager }

type idArgs struct {
	ID string `json:"id"`
}

const idSchema = `{
	"type": "object",
	"properties": {"id": {"type": "string", "minLength": 1, "description": "Agent id."}},
	"required": ["id"]
}`

func (t *statusTool) Name() string            { return "agent_status" }
func (t *statusTool) Description() string     { return "Report the status and progress of a sub-agent." }
func (t *statusTool) Schema() json.RawMessage { return json.RawMessage(idSchema) }
func (t *statusTool) Category() tool.Category { return tool.CategoryAgent }
func (t *statusTool) RequiresApproval() bool  { return false }
func (t *statusTool) IsDangerous() bool       { return false }

func (t *statusTool) Execute(_ context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	var a idArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	snap, err := t.mgr.Get(a.ID)
	if err != nil {
		return tool.Output{}, err
	}
	if snap.SessionID != env.SessionID {
		return tool.Output{}, fmt.Errorf("%w: %s", ErrCrossSession, a.ID)
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return tool.Output{}, err
	}
	return tool.Output{Content: string(out), Data: snap}, nil
}

// --- agent_kill ---

type killTool struct{ mgr *Manager }

func (t *killTool) Name() string            { return "agent_kill" }
func (t *killTool) Description() string     { return "Stop a running sub-agent." }
func (t *killTool) Schema() json.RawMessage { return json.RawMessage(idSchema) }
func (t *killTool) Category() tool.Category { return tool.CategoryAgent }
func (t *killTool) RequiresApproval() bool  { return true }
func (t *killTool) IsDangerous() bool       { return true }

func (t *killTool) Execute(_ context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	var a idArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	snap, err := t.mgr.Get(a.ID)
	if err != nil {
		return tool.Output{}, err
	}
	if snap.SessionID != env.SessionID {
		return tool.Output{}, fmt.Errorf("%w: %s", ErrCrossSession, a.ID)
	}
	if _, err := t.mgr.Kill(a.ID); err != nil {
		return tool.Output{}, err
	}
	return tool.Output{Content: fmt.Sprintf("agent %s killed", a.ID)}, nil
}

// Interface guards.
var (
	_ tool.Tool = (*spawnTool)(nil)
	_ tool.Tool = (*statusTool)(nil)
	_ tool.Tool = (*killTool)(nil)
)
