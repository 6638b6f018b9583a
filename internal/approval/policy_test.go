package approval_test

import (
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/approval/approvaltest"
	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/security/securitytest"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newPolicy(mode approval.Mode) (*approval.Policy, *approvaltest.Clock, func() []security.AuditEvent) {
	clock := approvaltest.NewClock(epoch)
	audit, events := securitytest.NewTestAuditLogger()
	p := approval.NewPolicy(approval.PolicyConfig{
		Mode:  mode,
		Store: approval.NewTrustStore(approval.TrustStoreConfig{Now: clock.Now}),
		Audit: audit,
	})
	return p, clock, events
}

func TestShouldAutoApprove_Always(t *testing.T) {
	t.Parallel()

	p, _, _ := newPolicy(approval.ModeAlways)
	if !p.ShouldAutoApprove("s1") {
		t.Fatal("always mode should auto-approve without trust state")
	}
}

func TestShouldAutoApprove_SessionOnceWindow(t *testing.T) {
	t.Parallel()

	p, clock, events := newPolicy(approval.ModeSessionOnce)

	if p.ShouldAutoApprove("s1") {
		t.Fatal("first call in a fresh session must not be auto-approved")
	}

	p.RecordApproval(approval.Decision{SessionID: "s1", CallID: "c1", ToolName: "bash"})

	clock.Advance(30 * time.Minute)
	if !p.ShouldAutoApprove("s1") {
		t.Fatal("call inside the trust window should be auto-approved")
	}

	clock.Advance(30 * time.Minute)
	if p.ShouldAutoApprove("s1") {
		t.Fatal("call at expiry should not be auto-approved")
	}

	if got := len(securitytest.OfType(events(), security.EventTrustGrant)); got != 1 {
		t.Fatalf("trust grants audited = %d, want 1", got)
	}
}

func TestShouldAutoApprove_SessionIsolation(t *testing.T) {
	t.Parallel()

	p, _, _ := newPolicy(approval.ModeSessionOnce)
	p.RecordApproval(approval.Decision{SessionID: "s1", CallID: "c1"})

	if p.ShouldAutoApprove("s2") {
		t.Fatal("trust granted to s1 leaked into s2")
	}
}

func TestShouldAutoApprove_SessionNeverAlwaysAsks(t *testing.T) {
	t.Parallel()

	for _, mode := range []approval.Mode{approval.ModeSessionNever, approval.ModePerTool} {
		p, _, events := newPolicy(mode)
		p.RecordApproval(approval.Decision{SessionID: "s1", CallID: "c1"})

		if p.ShouldAutoApprove("s1") {
			t.Fatalf("%s: approval must not grant trust", mode)
		}
		if got := len(securitytest.OfType(events(), security.EventApproval)); got != 1 {
			t.Fatalf("%s: approvals audited = %d, want 1", mode, got)
		}
		if p.Store().Len() != 0 {
			t.Fatalf("%s: trust store has %d records, want 0", mode, p.Store().Len())
		}
	}
}

func TestRecordApproval_RefreshesWindow(t *testing.T) {
	t.Parallel()

	p, clock, _ := newPolicy(approval.ModeSessionOnce)
	p.RecordApproval(approval.Decision{SessionID: "s1"})

	clock.Advance(50 * time.Minute)
	p.RecordApproval(approval.Decision{SessionID: "s1"})

	clock.Advance(50 * time.Minute)
	if !p.ShouldAutoApprove("s1") {
		t.Fatal("second approval should have superseded the first record")
	}
}

func TestRecordRejection_Audited(t *testing.T) {
	t.Parallel()

	p, _, events := newPolicy(approval.ModeSessionOnce)
	p.RecordRejection(approval.Decision{SessionID: "s1", CallID: "c1", ToolName: "bash", Reason: "no"})

	rejections := securitytest.OfType(events(), security.EventRejection)
	if len(rejections) != 1 {
		t.Fatalf("rejections audited = %d, want 1", len(rejections))
	}
	if rejections[0].Detail != "no" {
		t.Fatalf("rejection detail = %q, want %q", rejections[0].Detail, "no")
	}
	if p.ShouldAutoApprove("s1") {
		t.Fatal("rejection must not grant trust")
	}
}

func TestNewPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := approval.NewPolicy(approval.PolicyConfig{})
	if p.Mode() != approval.ModeSessionOnce {
		t.Fatalf("default mode = %q, want session-once", p.Mode())
	}
	if p.Store() == nil {
		t.Fatal("default store is nil")
	}
	// Nil audit logger and metrics must be tolerated.
	p.RecordApproval(approval.Decision{SessionID: "s1"})
	p.RecordRejection(approval.Decision{SessionID: "s1"})
	p.RecordAutoApproval(approval.Decision{SessionID: "s1"})
}
