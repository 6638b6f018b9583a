package classify

import (
	"encoding/json"
	"testing"
)

func TestMatchExact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input     string
		category  Category
		tool      string
		matchType string
	}{
		{"/read file.txt", CategoryFileOperations, ToolReadFile, MatchSlashCommand},
		{"/explore src", CategoryFileOperations, ToolListDir, MatchSlashCommand},
		{"/list", CategoryFileOperations, ToolListDir, MatchSlashCommand},
		{"/help", CategoryAIChat, ToolHelp, MatchSlashCommand},
		{"/search TODO", CategorySearchOperations, ToolSearch, MatchSlashCommand},
		{"／ｒｅａｄ a.go", CategoryFileOperations, ToolReadFile, MatchSlashCommand},
		{"agent_read_file(path=\"a.go\")", CategoryFileOperations, "agent_read_file", MatchAgentFunction},
		{"agent_search({\"query\":\"x\"})", CategorySearchOperations, "agent_search", MatchAgentFunction},
		{"git status", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"git commit -m 'wip'", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"npm install lodash", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"cargo test --all", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"python3 script.py", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"ls -la", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"pwd", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"cd ../web", CategoryTerminalCommands, ToolShell, MatchExactCommand},
		{"ls -la ./src ../docs", CategoryTerminalCommands, ToolShell, MatchExactCommand},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			res, ok := MatchExact(tt.input)
			if !ok {
				t.Fatalf("MatchExact(%q) did not match", tt.input)
			}
			if res.Layer != LayerExact || res.Confidence != 1.0 {
				t.Errorf("layer/confidence = %d/%v, want 1/1.0", res.Layer, res.Confidence)
			}
			if res.Category != tt.category || res.Tool != tt.tool || res.MatchType != tt.matchType {
				t.Errorf("got %+v, want category=%s tool=%s match=%s", res, tt.category, tt.tool, tt.matchType)
			}
		})
	}
}

func TestMatchExact_NoFuzzyMatches(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"/unknown thing",
		"git",
		"git statusx",
		"gitstatus",
		"python",
		"lsof",
		"read_file(a)",
		"please run git status",
		"cd into the folder and explain it",
		"exit the loop when done",
		"env vars for the build",
		"",
	} {
		if res, ok := MatchExact(input); ok {
			t.Errorf("MatchExact(%q) = %+v, want no match", input, res)
		}
	}
}

func TestMatchExact_Idempotent(t *testing.T) {
	t.Parallel()

	first, _ := MatchExact("/read file.txt")
	for range 10 {
		again, _ := MatchExact("/read file.txt")
		if again != first {
			t.Fatalf("repeat classification changed: %+v vs %+v", again, first)
		}
	}
}

func TestParseInvocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		tool  string
		args  map[string]any
	}{
		{"/read Docs/A.md", ToolReadFile, map[string]any{"path": "Docs/A.md"}},
		{"/list", ToolListDir, map[string]any{"path": "."}},
		{"/find needle here", ToolSearch, map[string]any{"query": "needle here"}},
		{`agent_write_file(path="a.txt", content="x, y")`, "agent_write_file", map[string]any{"path": "a.txt", "content": "x, y"}},
		{`agent_read_file('main.go')`, "agent_read_file", map[string]any{"path": "main.go"}},
		{`agent_list_dir({"path":"src"})`, "agent_list_dir", map[string]any{"path": "src"}},
		{"git log --oneline", ToolShell, map[string]any{"command": "git log --oneline"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			inv, ok := ParseInvocation(tt.input)
			if !ok {
				t.Fatalf("ParseInvocation(%q) failed", tt.input)
			}
			if inv.Tool != tt.tool {
				t.Errorf("tool = %q, want %q", inv.Tool, tt.tool)
			}
			var got map[string]any
			if err := json.Unmarshal(inv.Arguments, &got); err != nil {
				t.Fatalf("arguments not JSON: %v", err)
			}
			if len(got) != len(tt.args) {
				t.Fatalf("args = %v, want %v", got, tt.args)
			}
			for k, v := range tt.args {
				if got[k] != v {
					t.Errorf("args[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestParseInvocation_Rejects(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"/help", "/search", "agent_read_file(oops)", "hello"} {
		if inv, ok := ParseInvocation(input); ok {
			t.Errorf("ParseInvocation(%q) = %+v, want failure", input, inv)
		}
	}
}
