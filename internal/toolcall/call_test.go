package toolcall

import (
	"encoding/json"
	"testing"

	"github.com/flemzord/toolpipe/internal/tool"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusPending, StatusRunning, false},
		{StatusApproved, StatusCompleted, false},
		{StatusRejected, StatusApproved, false},
		{StatusCompleted, StatusFailed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRestore_RepairsResultInvariant(t *testing.T) {
	t.Parallel()

	res := tool.Result{Success: true, Output: "x"}
	tests := []struct {
		name       string
		in         Snapshot
		wantStatus Status
		wantResult bool
	}{
		{"stray result dropped", Snapshot{ID: "a", Status: StatusRunning, Result: &res}, StatusRunning, false},
		{"missing result repaired", Snapshot{ID: "b", Status: StatusCompleted}, StatusFailed, true},
		{"unknown status", Snapshot{ID: "c", Status: "weird"}, StatusPending, false},
		{"completed kept", Snapshot{ID: "d", Status: StatusCompleted, Result: &res}, StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Restore(tt.in).Snapshot()
			if got.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if (got.Result != nil) != tt.wantResult {
				t.Fatalf("result = %v, want present=%v", got.Result, tt.wantResult)
			}
		})
	}
}

func TestRestore_RejectedGetsDefaultReason(t *testing.T) {
	t.Parallel()

	got := Restore(Snapshot{ID: "r", Status: StatusRejected}).Snapshot()
	if got.Content() != DefaultRejectionReason {
		t.Fatalf("Content() = %q, want default reason", got.Content())
	}
}

func TestSnapshot_ArgumentsJSON(t *testing.T) {
	t.Parallel()

	if got := string((Snapshot{}).ArgumentsJSON()); got != "{}" {
		t.Fatalf("empty ArgumentsJSON() = %q, want {}", got)
	}
	s := Snapshot{Arguments: json.RawMessage(`{"a":1}`)}
	if got := string(s.ArgumentsJSON()); got != `{"a":1}` {
		t.Fatalf("ArgumentsJSON() = %q", got)
	}
}
