package hook

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/security"
)

// AuditRecord is one JSON Lines entry written by AuditHook.
type AuditRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	CallID     string    `json:"call_id"`
	SessionID  string    `json:"session_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	Code       string    `json:"code,omitempty"`
	DurationMS int64     `json:"duration_ms"`

	// Arguments and Error are only recorded when the hook has a redactor.
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// AuditHook writes a JSON Lines record for every settled call.
// It runs at AfterSettle with the lowest priority (runs last).
type AuditHook struct {
	writer   io.Writer
	redactor *security.Redactor
	mu       sync.Mutex
	now      func() time.Time
}

// NewAuditHook creates an audit hook that writes JSON Lines to w.
// In production, w is typically an *os.File; in tests, a *bytes.Buffer.
func NewAuditHook(w io.Writer) *AuditHook {
	return &AuditHook{
		writer: w,
		now:    time.Now,
	}
}

// WithRedactor makes the hook record the call arguments and the failure
// message, both scrubbed by r. Without a redactor neither is written.
func (a *AuditHook) WithRedactor(r *security.Redactor) *AuditHook {
	a.redactor = r
	return a
}

// Compile-time interface check.
var _ Hook = (*AuditHook)(nil)

// Position returns AfterSettle.
func (a *AuditHook) Position() Position { return AfterSettle }

// Priority returns math.MaxInt, so the audit hook runs last.
func (a *AuditHook) Priority() int { return math.MaxInt }

// Execute writes one JSON Lines record for the settled call.
func (a *AuditHook) Execute(_ context.Context, hctx *Context) (Action, error) {
	record := AuditRecord{
		Timestamp:  a.now(),
		CallID:     hctx.CallID,
		SessionID:  hctx.Env.SessionID,
		ThreadID:   hctx.Env.ThreadID,
		AgentID:    hctx.Env.AgentID,
		ToolName:   hctx.ToolName,
		Status:     hctx.Status,
		DurationMS: hctx.Duration.Milliseconds(),
	}
	if hctx.Result != nil {
		record.Success = hctx.Result.Success
		record.Code = string(hctx.Result.Code)
	}
	if a.redactor != nil {
		record.Arguments = a.redactor.RedactJSON(hctx.Arguments)
		if hctx.Result != nil {
			record.Error = a.redactor.Redact(hctx.Result.Error)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := json.NewEncoder(a.writer).Encode(record); err != nil {
		return ActionContinue, err
	}
	return ActionContinue, nil
}
