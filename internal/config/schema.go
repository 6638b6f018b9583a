// Package config handles YAML configuration loading, environment variable
// expansion, defaults and validation for toolpipe.
package config

import (
	"time"

	"github.com/flemzord/toolpipe/internal/agent"
	"github.com/flemzord/toolpipe/internal/gateway"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/provider/openaicompat"
	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/tool/builtin"
	"github.com/flemzord/toolpipe/modules/store/sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	// RootPath is the workspace tools are confined to. Defaults to ".".
	RootPath string `yaml:"root_path"`

	// DataDir holds the database and audit log. Defaults to ".toolpipe".
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Approval    ApprovalConfig    `yaml:"approval"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Provider    ProviderConfig    `yaml:"provider"`
	Agent       AgentConfig       `yaml:"agent"`
	Tools       ToolsConfig       `yaml:"tools"`
	Storage     StorageConfig     `yaml:"storage"`
	Gateway     gateway.Config    `yaml:"gateway"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Audit       AuditConfig       `yaml:"audit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ApprovalConfig selects the approval mode.
type ApprovalConfig struct {
	// Mode is always, session-once, session-never or per-tool.
	Mode string `yaml:"mode"`

	// AutoApprove is the legacy boolean flag, consulted only when Mode is
	// empty: true means always, false means session-once.
	AutoApprove *bool `yaml:"auto_approve"`

	// TrustTTL is how long a session-once approval is remembered.
	TrustTTL time.Duration `yaml:"trust_ttl"`

	// Timeout rejects a pending call nobody answered. Zero waits forever.
	Timeout time.Duration `yaml:"timeout"`
}

// ClassifierConfig configures the three-tier classifier.
type ClassifierConfig struct {
	// Model is the local Tier 3 model. An empty base_url disables Tier 3
	// and leaves the keyword fallback in charge.
	Model openaicompat.Config `yaml:"model"`

	ModelTimeout  time.Duration `yaml:"model_timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
	MaxRuleRunes  int           `yaml:"max_rule_runes"`
}

// ModelEnabled reports whether a Tier 3 backend is configured.
func (c ClassifierConfig) ModelEnabled() bool {
	return c.Model.BaseURL != ""
}

// ProviderConfig configures the agent model. An empty base_url leaves the
// agent route unavailable; direct commands still work.
type ProviderConfig struct {
	openaicompat.Config `yaml:",inline"`
}

// Enabled reports whether an agent model is configured.
func (c ProviderConfig) Enabled() bool {
	return c.BaseURL != ""
}

// AgentConfig tunes the agent loop and sub-agents.
type AgentConfig struct {
	agent.LoopConfig `yaml:",inline"`

	SystemPrompt string `yaml:"system_prompt"`

	// MaxSubAgents caps concurrently running sub-agents per process.
	MaxSubAgents int `yaml:"max_sub_agents"`

	// SubAgentTimeout bounds a single sub-agent run.
	SubAgentTimeout time.Duration `yaml:"sub_agent_timeout"`
}

// ToolsConfig configures the tool registry.
type ToolsConfig struct {
	Builtin   builtin.Config           `yaml:"builtin"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	// Deny lists tools blocked before execution.
	Deny []string `yaml:"deny"`

	// SubAgents registers agent_spawn, agent_status and agent_kill.
	SubAgents bool `yaml:"sub_agents"`
}

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// StorageConfig selects where threads are persisted.
type StorageConfig struct {
	Driver string        `yaml:"driver"`
	SQLite sqlite.Config `yaml:"sqlite"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	Metrics bool                      `yaml:"metrics"`
	Tracing observability.TraceConfig `yaml:"tracing"`
}

// AuditConfig configures the JSONL audit log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path defaults to audit.jsonl in the data dir.
	Path string `yaml:"path"`
}

// MaintenanceConfig schedules periodic cleanup.
type MaintenanceConfig struct {
	// Schedule is a cron expression. Defaults to every five minutes.
	Schedule string `yaml:"schedule"`

	// SessionIdleTTL evicts sessions idle for longer. Zero keeps them.
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	// EventMaxAge drops buffered sub-agent events whose agent never registered.
	EventMaxAge time.Duration `yaml:"event_max_age"`
}
