package approval

import (
	"log/slog"

	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/security"
)

// ShouldAutoApprove reports whether a call in sessionID may skip interactive
// approval under mode.
func ShouldAutoApprove(mode Mode, sessionID string, store *TrustStore) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeSessionOnce:
		if store == nil {
			return false
		}
		_, ok := store.Lookup(sessionID)
		return ok
	default:
		return false
	}
}

// PolicyConfig configures a Policy.
type PolicyConfig struct {
	Mode    Mode
	Store   *TrustStore
	Audit   *security.AuditLogger
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Policy binds a mode to its trust store and records decisions.
type Policy struct {
	mode    Mode
	store   *TrustStore
	audit   *security.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPolicy creates a Policy. A zero Mode selects DefaultMode and a nil
// Store gets a fresh store with the default TTL.
func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	if cfg.Store == nil {
		cfg.Store = NewTrustStore(TrustStoreConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Policy{
		mode:    cfg.Mode,
		store:   cfg.Store,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Mode returns the configured mode.
func (p *Policy) Mode() Mode { return p.mode }

// Store returns the trust store.
func (p *Policy) Store() *TrustStore { return p.store }

// ShouldAutoApprove reports whether a call in sessionID may skip approval.
func (p *Policy) ShouldAutoApprove(sessionID string) bool {
	return ShouldAutoApprove(p.mode, sessionID, p.store)
}

// Decision identifies one approval outcome for RecordDecision.
type Decision struct {
	SessionID string
	CallID    string
	ToolName  string
	Reason    string
}

// RecordAutoApproval audits a call that bypassed interactive approval.
func (p *Policy) RecordAutoApproval(d Decision) {
	p.audit.Log(security.AuditEvent{
		Type:      security.EventAutoApproval,
		SessionID: d.SessionID,
		CallID:    d.CallID,
		ToolName:  d.ToolName,
		Detail:    d.Reason,
		Metadata:  map[string]string{"mode": string(p.mode)},
	})
	p.metrics.ObserveDecision(string(p.mode), "auto")
}

// RecordApproval audits an interactive approval. Under ModeSessionOnce it
// also writes a new trust record for the session, superseding any old one.
func (p *Policy) RecordApproval(d Decision) {
	p.audit.Log(security.AuditEvent{
		Type:      security.EventApproval,
		SessionID: d.SessionID,
		CallID:    d.CallID,
		ToolName:  d.ToolName,
		Metadata:  map[string]string{"mode": string(p.mode)},
	})
	p.metrics.ObserveDecision(string(p.mode), "approved")

	if p.mode != ModeSessionOnce {
		return
	}
	rec := p.store.Grant(d.SessionID)
	p.metrics.ObserveTrustGrant()
	p.audit.Log(security.AuditEvent{
		Type:      security.EventTrustGrant,
		SessionID: d.SessionID,
		CallID:    d.CallID,
		Detail:    "session trusted until " + rec.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
	p.logger.Info("session trust granted",
		"session_id", d.SessionID,
		"expires_at", rec.ExpiresAt,
	)
}

// RecordRejection audits an interactive rejection.
func (p *Policy) RecordRejection(d Decision) {
	p.audit.Log(security.AuditEvent{
		Type:      security.EventRejection,
		SessionID: d.SessionID,
		CallID:    d.CallID,
		ToolName:  d.ToolName,
		Detail:    d.Reason,
		Metadata:  map[string]string{"mode": string(p.mode)},
	})
	p.metrics.ObserveDecision(string(p.mode), "rejected")
}
