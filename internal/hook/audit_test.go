package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool"
)

func TestAuditHook_PositionAndPriority(t *testing.T) {
	t.Parallel()
	h := NewAuditHook(&bytes.Buffer{})
	if h.Position() != AfterSettle {
		t.Errorf("position = %q, want %q", h.Position(), AfterSettle)
	}
	if h.Priority() != math.MaxInt {
		t.Errorf("priority = %d, want math.MaxInt", h.Priority())
	}
}

func TestAuditHook_WritesJSONLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAuditHook(&buf)
	h.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	hctx := testContext()
	hctx.Env = tool.ExecutionEnv{SessionID: "s1", ThreadID: "t1"}
	hctx.Status = "failed"
	hctx.Result = &tool.Result{Success: false, Error: "denied", Code: tool.FailureExecution}
	hctx.Duration = 1500 * time.Millisecond

	if _, err := h.Execute(context.Background(), hctx); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected one line, got %q", buf.String())
	}

	var rec AuditRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.CallID != "call-1" || rec.SessionID != "s1" || rec.ThreadID != "t1" {
		t.Errorf("ids = %+v", rec)
	}
	if rec.Status != "failed" || rec.Success || rec.Code != "execution_failed" {
		t.Errorf("outcome = %+v", rec)
	}
	if rec.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", rec.DurationMS)
	}
}

func TestAuditHook_MultipleRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAuditHook(&buf)
	for range 3 {
		if _, err := h.Execute(context.Background(), testContext()); err != nil {
			t.Fatalf("Execute() unexpected error: %v", err)
		}
	}
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Fatalf("lines = %d, want 3", got)
	}
}

func TestAuditHook_RecordsRedactedArguments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAuditHook(&buf).WithRedactor(security.NewRedactor())

	hctx := testContext()
	hctx.ToolName = "bash"
	hctx.Arguments = json.RawMessage(`{"command":"OPENAI_API_KEY=abc123def npm test","api_key":"k-1"}`)
	hctx.Status = "failed"
	hctx.Result = &tool.Result{Error: "401 from provider for sk-ant-REDACTED", Code: tool.FailureExecution}

	if _, err := h.Execute(context.Background(), hctx); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}

	out := buf.String()
	for _, leaked := range []string{"abc123def", `"k-1"`, "sk-ant-REDACTED"} {
		if strings.Contains(out, leaked) {
			t.Errorf("%q leaked into audit line: %s", leaked, out)
		}
	}

	var rec AuditRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var args map[string]string
	if err := json.Unmarshal(rec.Arguments, &args); err != nil {
		t.Fatalf("arguments not JSON: %v (%s)", err, rec.Arguments)
	}
	if args["command"] != "OPENAI_API_KEY="+security.RedactPlaceholder+" npm test" {
		t.Errorf("command = %q", args["command"])
	}
	if args["api_key"] != security.RedactPlaceholder {
		t.Errorf("api_key = %q", args["api_key"])
	}
	if !strings.HasPrefix(rec.Error, "401 from provider") {
		t.Errorf("Error = %q", rec.Error)
	}
}

func TestAuditHook_OmitsArgumentsWithoutRedactor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAuditHook(&buf)

	hctx := testContext()
	hctx.Arguments = json.RawMessage(`{"path":"notes.md"}`)
	hctx.Result = &tool.Result{Error: "boom"}

	if _, err := h.Execute(context.Background(), hctx); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if out := buf.String(); strings.Contains(out, "arguments") || strings.Contains(out, "boom") {
		t.Errorf("unredacted payload written: %s", out)
	}
}
