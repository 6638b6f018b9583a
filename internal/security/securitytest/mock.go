// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/flemzord/toolpipe/internal/security"
)

// NewTestRedactor creates a Redactor with no patterns, so test strings that
// look like production secrets are left alone.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger creates an AuditLogger that only records events in
// memory. The returned function yields a snapshot of logged events and is
// safe to call concurrently with logging.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]security.AuditEvent, len(events))
		copy(out, events)
		return out
	}
}

// OfType filters events down to the given type.
func OfType(events []security.AuditEvent, typ security.EventType) []security.AuditEvent {
	var out []security.AuditEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
