package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/security"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds registered tools and executes them by name.
// It is instance-based (not global) for better testability. Entries are
// written once at registration and only read afterwards.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]entry
	auditLogger *security.AuditLogger
	rateLimiter *security.RateLimiter
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// SetAuditLogger configures audit logging for tool executions.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogger = logger
}

// SetRateLimiter configures per-session rate limiting for tool executions.
func (r *Registry) SetRateLimiter(limiter *security.RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = limiter
}

// Register adds a tool to the registry. It never overwrites: a second tool
// with the same name is rejected with ErrDuplicateTool.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}
	if !t.Category().Valid() {
		return fmt.Errorf("%w: %s: %q", ErrInvalidCategory, name, t.Category())
	}
	schema, err := compileSchema(name, t.Schema())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = entry{tool: t, schema: schema}
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Has reports whether a tool named name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns registered tools sorted by name. With categories given, only
// tools in one of them are returned.
func (r *Registry) List(categories ...Category) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		if len(categories) > 0 && !slices.Contains(categories, e.tool.Category()) {
			continue
		}
		out = append(out, e.tool)
	}
	slices.SortFunc(out, func(a, b Tool) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return out
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	tools := r.List()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns model-facing definitions for the listed tools.
func (r *Registry) Definitions(categories ...Category) []provider.ToolDefinition {
	tools := r.List(categories...)
	defs := make([]provider.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		}
	}
	return defs
}

// Execute runs the named tool: lookup -> rate limit -> audit -> argument
// validation -> handler -> audit. It never returns an error; every failure,
// including a handler panic, becomes an unsuccessful Result whose Error keeps
// the original message verbatim. There is no built-in timeout or retry.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, env ExecutionEnv) Result {
	r.mu.RLock()
	e, ok := r.tools[name]
	rl := r.rateLimiter
	al := r.auditLogger
	r.mu.RUnlock()

	if !ok {
		return Failure(FailureNotFound, fmt.Sprintf("%s: %s", ErrToolNotFound, name))
	}

	if rl != nil {
		if err := rl.Allow(security.KindToolCall, env.SessionID); err != nil {
			if al != nil {
				al.Log(security.AuditEvent{
					Type:      security.EventRateLimit,
					SessionID: env.SessionID,
					ToolName:  name,
					Detail:    "tool_call rate limit exceeded",
				})
			}
			return Failure(FailureRateLimited, fmt.Sprintf("tool %s: %s", name, err))
		}
	}

	// Truncate args to prevent audit log bloat from large payloads.
	if al != nil {
		al.Log(security.AuditEvent{
			Type:      security.EventToolCall,
			SessionID: env.SessionID,
			AgentID:   env.AgentID,
			ToolName:  name,
			Detail:    truncateForAudit(string(args)),
		})
	}

	var res Result
	if err := validateArgs(e.schema, args); err != nil {
		res = Failure(FailureInvalidArguments, err.Error())
	} else {
		res = invoke(ctx, e.tool, args, env)
	}

	if al != nil {
		detail := truncateForAudit(res.Output)
		if !res.Success {
			detail = "error: " + truncateForAudit(res.Error)
		}
		al.Log(security.AuditEvent{
			Type:      security.EventToolResult,
			SessionID: env.SessionID,
			AgentID:   env.AgentID,
			ToolName:  name,
			Detail:    detail,
			Metadata: map[string]string{
				"success": fmt.Sprintf("%v", res.Success),
				"code":    string(res.Code),
			},
		})
	}
	return res
}

// invoke calls the handler and converts errors and panics into results.
func invoke(ctx context.Context, t Tool, args json.RawMessage, env ExecutionEnv) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Failure(FailurePanic, fmt.Sprintf("%s: %s panicked: %v", ErrToolExecutionFailed, t.Name(), p))
		}
	}()

	out, err := t.Execute(ctx, args, env)
	switch {
	case err != nil:
		return Result{Success: false, Output: out.Content, Data: out.Data, Error: err.Error(), Code: FailureExecution}
	case out.IsError:
		return Result{Success: false, Output: out.Content, Data: out.Data, Error: out.Content, Code: FailureExecution}
	default:
		return Result{Success: true, Output: out.Content, Data: out.Data}
	}
}

// maxAuditDetailLen is the maximum length of audit detail strings.
const maxAuditDetailLen = 4096

// truncateForAudit truncates a string to maxAuditDetailLen, appending
// a truncation indicator if the string was shortened.
// It walks back to a valid UTF-8 rune boundary to avoid splitting multi-byte
// characters when the cut falls mid-rune.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
