package approval

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPromptText(t *testing.T) {
	t.Parallel()

	req := Request{
		ToolName:    "bash",
		Description: "Run a shell command",
		Arguments:   json.RawMessage(`{"command":"ls"}`),
		Dangerous:   true,
	}
	if got := promptTitle(req); got != "Run bash? (dangerous)" {
		t.Fatalf("promptTitle() = %q", got)
	}
	desc := promptDescription(req)
	if !strings.Contains(desc, "Run a shell command") || !strings.Contains(desc, `{"command":"ls"}`) {
		t.Fatalf("promptDescription() = %q", desc)
	}
	if got := promptDescription(Request{}); got != "" {
		t.Fatalf("promptDescription(empty) = %q, want empty", got)
	}
}
