package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned when a path resolves outside the tool root.
	ErrPathEscape = errors.New("path escapes the workspace root")

	// ErrRestrictedPath is returned for /proc, /sys and /dev.
	ErrRestrictedPath = errors.New("access to restricted path is not allowed")
)

// ResolveInRoot joins rel onto root and returns the absolute result, refusing
// anything that leaves root (through "..", an absolute path, or a symlink)
// or that lands in a kernel pseudo-filesystem.
func ResolveInRoot(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	target := rel
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, rel)
	}
	target = filepath.Clean(target)

	// Follow symlinks on the longest existing prefix so a link inside the
	// root cannot point outside it.
	if resolved, err := evalExisting(target); err == nil {
		target = resolved
	}

	if target != absRoot && !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	lower := strings.ToLower(target)
	for _, prefix := range []string{"/proc/", "/sys/", "/dev/"} {
		if strings.HasPrefix(lower+"/", prefix) {
			return "", fmt.Errorf("%w: %s", ErrRestrictedPath, rel)
		}
	}
	return target, nil
}

func evalExisting(path string) (string, error) {
	var suffix []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}
}

// sensitiveEnvPrefixes are stripped from subprocess environments.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"TOOLPIPE_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
}

// SanitizedEnv returns os.Environ() without credential-bearing variables.
// Any of the given secret values that still appear in a surviving variable
// are replaced by RedactPlaceholder.
func SanitizedEnv(secrets ...string) []string {
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		for _, s := range secrets {
			// Short values produce too many false positives.
			if len(s) >= 8 {
				entry = strings.ReplaceAll(entry, s, RedactPlaceholder)
			}
		}
		out = append(out, entry)
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
