package hook

import (
	"context"
	"fmt"
	"slices"
)

// DenyHook blocks calls to the listed tools before they run.
type DenyHook struct {
	tools []string
}

// NewDenyHook creates a hook blocking every tool in names.
func NewDenyHook(names ...string) *DenyHook {
	return &DenyHook{tools: slices.Clone(names)}
}

var _ Hook = (*DenyHook)(nil)

// Position returns BeforeExecute.
func (d *DenyHook) Position() Position { return BeforeExecute }

// Priority returns 0 so deny rules run before other BeforeExecute hooks.
func (d *DenyHook) Priority() int { return 0 }

// Execute blocks the call when its tool is denied.
func (d *DenyHook) Execute(_ context.Context, hctx *Context) (Action, error) {
	if slices.Contains(d.tools, hctx.ToolName) {
		hctx.BlockReason = fmt.Sprintf("tool %q is disabled by configuration", hctx.ToolName)
		return ActionBlock, nil
	}
	return ActionContinue, nil
}
