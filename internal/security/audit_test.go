package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixedTime },
	})

	logger.Log(AuditEvent{
		Type:      EventApproval,
		SessionID: "sess-1",
		CallID:    "call-1",
		ToolName:  "agent_write_file",
		Detail:    "approved by user",
	})

	var got AuditEvent
	if err := json.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("failed to decode JSONL: %v", err)
	}
	if got.Type != EventApproval || got.SessionID != "sess-1" || got.CallID != "call-1" {
		t.Errorf("event = %+v", got)
	}
	if !got.Timestamp.Equal(fixedTime) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, fixedTime)
	}
}

func TestAuditLogger_RedactsWithoutMutatingCaller(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.AddLiteral("my-secret-key")
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r})

	meta := map[string]string{"args": "token=my-secret-key"}
	logger.Log(AuditEvent{Type: EventToolCall, Detail: "using my-secret-key", Metadata: meta})

	if strings.Contains(buf.String(), "my-secret-key") {
		t.Errorf("secret leaked into audit log: %s", buf.String())
	}
	if meta["args"] != "token=my-secret-key" {
		t.Errorf("caller metadata mutated: %v", meta)
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventToolCall})
	if logger.WriteErrors() != 0 {
		t.Error("nil logger reported write errors")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAuditLogger_CountsWriteErrors(t *testing.T) {
	t.Parallel()

	logger := NewAuditLogger(AuditLoggerConfig{Writer: failingWriter{}})
	logger.Log(AuditEvent{Type: EventToolCall})
	logger.Log(AuditEvent{Type: EventToolResult})
	if got := logger.WriteErrors(); got != 2 {
		t.Errorf("WriteErrors = %d, want 2", got)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	count := 0
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(AuditEvent) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventToolCall})
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}
