package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/approval"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TP_KEY", "sk-123")
	t.Setenv("TP_EMPTY", "")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{name: "set", in: "key: ${TP_KEY}", want: "key: sk-123"},
		{name: "default unused", in: "key: ${TP_KEY:-fallback}", want: "key: sk-123"},
		{name: "default used", in: "key: ${TP_MISSING:-fallback}", want: "key: fallback"},
		{name: "empty default", in: "key: ${TP_MISSING:-}", want: "key: "},
		{name: "set but empty", in: "key: ${TP_EMPTY:-x}", want: "key: "},
		{name: "unresolved", in: "a: ${TP_NOPE_1}\nb: ${TP_NOPE_2}", wantErr: "TP_NOPE_2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.in))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnv: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TP_AGENT_KEY", "sk-agent")
	path := filepath.Join(t.TempDir(), "toolpipe.yaml")
	body := `
version: "1"
root_path: /srv/work
approval:
  mode: session-never
  trust_ttl: 30m
  timeout: 2m
classifier:
  model:
    base_url: http://localhost:8081/v1
    model: qwen2.5-0.5b
  min_confidence: 0.6
provider:
  base_url: https://api.example.com/v1
  api_key: ${TP_AGENT_KEY}
  model: gpt-4o-mini
agent:
  max_iterations: 4
  system_prompt: be brief
tools:
  builtin:
    max_read_bytes: 1000
    disable_shell: true
  deny: [agent_write_file]
storage:
  driver: sqlite
gateway:
  bind: 0.0.0.0:9090
  auth:
    bearer_token: secret
telemetry:
  metrics: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	mode, _ := cfg.ApprovalMode()
	if mode != approval.ModeSessionNever || cfg.Approval.TrustTTL != 30*time.Minute || cfg.Approval.Timeout != 2*time.Minute {
		t.Errorf("approval = %+v (mode %s)", cfg.Approval, mode)
	}
	if !cfg.Classifier.ModelEnabled() || cfg.Classifier.Model.Model != "qwen2.5-0.5b" {
		t.Errorf("classifier = %+v", cfg.Classifier)
	}
	if !cfg.Provider.Enabled() || cfg.Provider.APIKey != "sk-agent" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Agent.MaxIterations != 4 || cfg.Agent.SystemPrompt != "be brief" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Tools.Builtin.MaxReadBytes != 1000 || !cfg.Tools.Builtin.DisableShell || len(cfg.Tools.Deny) != 1 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if cfg.Storage.SQLite.Path != filepath.Join(DefaultDataDir, "toolpipe.db") {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
	}
	if cfg.Gateway.Bind != "0.0.0.0:9090" || cfg.Gateway.Auth.BearerToken != "secret" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Maintenance.Schedule != DefaultSchedule {
		t.Errorf("schedule = %q", cfg.Maintenance.Schedule)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("version: \"1\"\napprovals:\n  mode: always\n"))
	if err == nil || !strings.Contains(err.Error(), "approvals") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory || cfg.RootPath != "." {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestApprovalMode_Legacy(t *testing.T) {
	t.Parallel()
	yes, no := true, false
	tests := []struct {
		name   string
		mode   string
		legacy *bool
		want   approval.Mode
	}{
		{name: "neither", want: approval.ModeSessionOnce},
		{name: "legacy true", legacy: &yes, want: approval.ModeAlways},
		{name: "legacy false", legacy: &no, want: approval.ModeSessionOnce},
		{name: "mode wins", mode: "per-tool", legacy: &yes, want: approval.ModePerTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Approval: ApprovalConfig{Mode: tt.mode, AutoApprove: tt.legacy}}
			got, err := cfg.ApprovalMode()
			if err != nil {
				t.Fatalf("ApprovalMode: %v", err)
			}
			if got != tt.want {
				t.Errorf("mode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, wantErr: "version field is required"},
		{name: "bad version", mutate: func(c *Config) { c.Version = "2" }, wantErr: "unsupported version"},
		{name: "bad mode", mutate: func(c *Config) { c.Approval.Mode = "sometimes" }, wantErr: "approval.mode"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "storage.driver"},
		{name: "bad schedule", mutate: func(c *Config) { c.Maintenance.Schedule = "every tuesday" }, wantErr: "maintenance.schedule"},
		{name: "bad confidence", mutate: func(c *Config) { c.Classifier.MinConfidence = 1.5 }, wantErr: "min_confidence"},
		{name: "sub agents need provider", mutate: func(c *Config) { c.Tools.SubAgents = true }, wantErr: "requires a provider"},
		{name: "incomplete provider", mutate: func(c *Config) { c.Provider.BaseURL = "https://x" }, wantErr: "provider: openaicompat: model is required"},
		{name: "empty deny entry", mutate: func(c *Config) { c.Tools.Deny = []string{" "} }, wantErr: "tools.deny[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Version = ""
	cfg.Storage.Driver = "nope"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"version", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
