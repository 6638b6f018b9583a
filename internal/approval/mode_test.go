package approval

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"always", ModeAlways, false},
		{"session-once", ModeSessionOnce, false},
		{"Session-Never", ModeSessionNever, false},
		{" per-tool ", ModePerTool, false},
		{"sometimes", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Fatalf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	tests := []struct {
		name   string
		mode   string
		legacy *bool
		want   Mode
	}{
		{"explicit wins over legacy", "session-never", &yes, ModeSessionNever},
		{"legacy true", "", &yes, ModeAlways},
		{"legacy false", "", &no, ModeSessionOnce},
		{"nothing set", "", nil, ModeSessionOnce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.mode, tt.legacy)
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLegacyFlag(t *testing.T) {
	t.Parallel()

	if !ModeAlways.LegacyFlag() {
		t.Fatal("ModeAlways.LegacyFlag() = false, want true")
	}
	for _, m := range []Mode{ModeSessionOnce, ModeSessionNever, ModePerTool} {
		if m.LegacyFlag() {
			t.Fatalf("%s.LegacyFlag() = true, want false", m)
		}
	}
}
