package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks cfg and returns every problem joined together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if _, err := cfg.ApprovalMode(); err != nil {
		errs = append(errs, fmt.Errorf("config: approval.mode: %w", err))
	}
	if cfg.Approval.Timeout < 0 {
		errs = append(errs, errors.New("config: approval.timeout must not be negative"))
	}

	if cfg.Classifier.ModelEnabled() {
		if err := cfg.Classifier.Model.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: classifier.model: %w", err))
		}
	}
	if c := cfg.Classifier.MinConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("config: classifier.min_confidence must be within [0, 1], got %v", c))
	}

	if cfg.Provider.Enabled() {
		if err := cfg.Provider.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: provider: %w", err))
		}
	}
	if cfg.Agent.MaxIterations < 0 || cfg.Agent.TokenBudget < 0 {
		errs = append(errs, errors.New("config: agent limits must not be negative"))
	}
	if cfg.Tools.SubAgents && !cfg.Provider.Enabled() {
		errs = append(errs, errors.New("config: tools.sub_agents requires a provider"))
	}

	switch cfg.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if err := cfg.Storage.SQLite.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: storage.sqlite: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("config: storage.driver must be %q or %q, got %q", StorageMemory, StorageSQLite, cfg.Storage.Driver))
	}

	for i, name := range cfg.Tools.Deny {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("config: tools.deny[%d] is empty", i))
		}
	}
	if slices.Contains(cfg.Tools.Deny, "*") {
		errs = append(errs, errors.New("config: tools.deny does not support wildcards"))
	}

	if _, err := cron.ParseStandard(cfg.Maintenance.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("config: maintenance.schedule: %w", err))
	}
	if cfg.Maintenance.SessionIdleTTL < 0 {
		errs = append(errs, errors.New("config: maintenance.session_idle_ttl must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseLogLevel maps a configured level name to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
