package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveInRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	realRoot, _ := filepath.EvalSymlinks(root)

	got, err := ResolveInRoot(root, "src/main.go")
	if err != nil {
		t.Fatalf("ResolveInRoot: %v", err)
	}
	if want := filepath.Join(realRoot, "src", "main.go"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got, err := ResolveInRoot(root, "."); err != nil || got != realRoot {
		t.Errorf("root itself = %q, %v", got, err)
	}

	for _, bad := range []string{"../etc/passwd", "src/../../x", "/etc/passwd"} {
		if _, err := ResolveInRoot(root, bad); !errors.Is(err, ErrPathEscape) {
			t.Errorf("ResolveInRoot(%q) = %v, want ErrPathEscape", bad, err)
		}
	}
}

func TestResolveInRoot_SymlinkEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := ResolveInRoot(root, "link/secret.txt"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("symlink escape = %v, want ErrPathEscape", err)
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-should-not-leak")
	t.Setenv("TOOLPIPE_TEST_PLAIN", "x")
	t.Setenv("HARMLESS_VAR", "contains supersecretvalue here")

	env := SanitizedEnv("supersecretvalue")
	joined := strings.Join(env, "\n")
	if strings.Contains(joined, "OPENAI_API_KEY") || strings.Contains(joined, "TOOLPIPE_TEST_PLAIN") {
		t.Error("sensitive variables survived")
	}
	if strings.Contains(joined, "supersecretvalue") {
		t.Error("secret value survived in HARMLESS_VAR")
	}
	if !strings.Contains(joined, "HARMLESS_VAR=contains "+RedactPlaceholder+" here") {
		t.Error("harmless variable missing or not redacted")
	}
}
