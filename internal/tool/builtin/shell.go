package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool"
)

type shellReq struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func newShell(cfg Config) tool.Tool {
	return &typed[shellReq]{
		meta: meta{
			name:        "bash",
			description: "Run a shell command in the workspace and return its combined output.",
			category:    tool.CategoryShell,
			approval:    true,
			dangerous:   true,
			schema: `{
				"type": "object",
				"properties": {
					"command": {"type": "string", "minLength": 1},
					"timeout_seconds": {"type": "integer", "minimum": 1}
				},
				"required": ["command"],
				"additionalProperties": false
			}`,
		},
		run: func(ctx context.Context, req shellReq, env tool.ExecutionEnv) (tool.Output, error) {
			dir, err := security.ResolveInRoot(env.RootPath, ".")
			if err != nil {
				return tool.Output{}, err
			}
			timeout := cfg.ShellTimeout
			if req.TimeoutSeconds > 0 {
				timeout = min(time.Duration(req.TimeoutSeconds)*time.Second, cfg.ShellTimeout)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "sh", "-c", req.Command)
			cmd.Dir = dir
			cmd.Env = security.SanitizedEnv(cfg.Secrets...)
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out

			runErr := cmd.Run()
			content, cut := truncate(out.String(), cfg.MaxOutputBytes)
			if cut {
				content += "\n[output truncated]"
			}

			exitCode := 0
			var exitErr *exec.ExitError
			switch {
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				return tool.Output{Content: content}, fmt.Errorf("command timed out after %s", timeout)
			case errors.As(runErr, &exitErr):
				exitCode = exitErr.ExitCode()
			case runErr != nil:
				return tool.Output{Content: content}, runErr
			}

			data := map[string]any{"exit_code": exitCode}
			if exitCode != 0 {
				return tool.Output{
					Content: fmt.Sprintf("%s\n[exit status %d]", content, exitCode),
					Data:    data,
					IsError: true,
				}, nil
			}
			return tool.Output{Content: content, Data: data}, nil
		},
	}
}
