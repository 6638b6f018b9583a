// Package approval decides whether a tool call may skip interactive consent
// and tracks the time-bounded session trust that makes that possible.
package approval

import (
	"fmt"
	"strings"
)

// Mode is the configured approval behaviour. Modes are mutually exclusive.
type Mode string

// Mode values.
const (
	// ModeAlways auto-approves every call without consulting trust state.
	ModeAlways Mode = "always"

	// ModeSessionOnce asks once per session; an approval grants trust for
	// the rest of the trust window.
	ModeSessionOnce Mode = "session-once"

	// ModeSessionNever asks for every call. Approvals are audited only.
	ModeSessionNever Mode = "session-never"

	// ModePerTool behaves like ModeSessionNever. It is kept as its own value
	// so older configuration files keep parsing.
	ModePerTool Mode = "per-tool"
)

// DefaultMode applies when neither a mode nor the legacy flag is configured.
const DefaultMode = ModeSessionOnce

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAlways, ModeSessionOnce, ModeSessionNever, ModePerTool:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// FromLegacy maps the legacy auto-approve flag: true is ModeAlways, false is
// ModeSessionOnce.
func FromLegacy(autoApprove bool) Mode {
	if autoApprove {
		return ModeAlways
	}
	return ModeSessionOnce
}

// Resolve picks the effective mode. An explicit mode wins over the legacy
// flag; with neither set DefaultMode is used.
func Resolve(mode string, legacyAutoApprove *bool) (Mode, error) {
	if strings.TrimSpace(mode) != "" {
		return ParseMode(mode)
	}
	if legacyAutoApprove != nil {
		return FromLegacy(*legacyAutoApprove), nil
	}
	return DefaultMode, nil
}

// LegacyFlag derives the legacy boolean for settings consumers that still
// read it.
func (m Mode) LegacyFlag() bool {
	return m == ModeAlways
}
