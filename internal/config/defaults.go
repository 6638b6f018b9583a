package config

import (
	"path/filepath"
	"time"

	"github.com/flemzord/toolpipe/internal/approval"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultDataDir        = ".toolpipe"
	DefaultSchedule       = "*/5 * * * *"
	DefaultSessionIdleTTL = 24 * time.Hour
	DefaultEventMaxAge    = 10 * time.Minute
	DefaultMaxSubAgents   = 5
	DefaultSubAgentTTL    = 5 * time.Minute
)

// Default returns a configuration usable without a file: in-memory
// storage, session-once approvals and no model.
func Default() *Config {
	cfg := &Config{Version: "1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values in place. Sections owned by other
// packages keep their own defaults and are not touched here.
func ApplyDefaults(cfg *Config) {
	if cfg.RootPath == "" {
		cfg.RootPath = "."
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Approval.TrustTTL <= 0 {
		cfg.Approval.TrustTTL = approval.DefaultTrustTTL
	}
	if cfg.Agent.MaxSubAgents <= 0 {
		cfg.Agent.MaxSubAgents = DefaultMaxSubAgents
	}
	if cfg.Agent.SubAgentTimeout <= 0 {
		cfg.Agent.SubAgentTimeout = DefaultSubAgentTTL
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Storage.Driver == StorageSQLite && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = filepath.Join(cfg.DataDir, "toolpipe.db")
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "audit.jsonl")
	}
	if cfg.Maintenance.Schedule == "" {
		cfg.Maintenance.Schedule = DefaultSchedule
	}
	if cfg.Maintenance.SessionIdleTTL == 0 {
		cfg.Maintenance.SessionIdleTTL = DefaultSessionIdleTTL
	}
	if cfg.Maintenance.EventMaxAge <= 0 {
		cfg.Maintenance.EventMaxAge = DefaultEventMaxAge
	}
}

// ApprovalMode resolves the effective approval mode, honouring the legacy
// auto_approve flag when no mode is set.
func (c *Config) ApprovalMode() (approval.Mode, error) {
	return approval.Resolve(c.Approval.Mode, c.Approval.AutoApprove)
}
