package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches field and attribute names that hold secrets:
// "api_key", "bearer_token", "OPENAI_API_KEY", "password".
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api[_-]?key|credential|authorization)s?$`)

// rule is one pattern with its replacement template. Templates keep the
// non-secret part of a match (a header scheme, a field name) readable.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor scrubs secrets from log lines, audit details and tool payloads.
// It knows the key formats of common model providers, the credentials the
// gateway accepts (bearer and basic headers, the ?token= query parameter),
// secret-named fields inside tool arguments, and literal values registered
// at startup from the configuration. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	rules    []rule
	literals []string
}

// NewRedactor creates a Redactor loaded with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{rules: defaultRules()}
}

// AddLiteral registers a secret value loaded at runtime (an API key from the
// config file or the environment). Values shorter than four bytes are
// ignored: redacting them would shred ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lit := range r.literals {
		if lit == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	rules := r.rules
	literals := r.literals
	r.mu.RUnlock()

	// Literals first: a configured key may not match any format rule.
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, rl := range rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// RedactMap redacts m in place. String values under secret-named keys are
// replaced outright; every other string goes through Redact. Nested maps and
// slices are walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
		return val
	case string:
		return r.Redact(val)
	default:
		return v
	}
}

// RedactJSON returns a redacted copy of a tool payload. JSON input is
// decoded, walked with RedactMap semantics and re-encoded; anything else is
// redacted as text and returned as a JSON string.
func (r *Redactor) RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		out, _ := json.Marshal(r.Redact(string(raw)))
		return out
	}
	out, err := json.Marshal(r.redactValue(v))
	if err != nil {
		return raw
	}
	return out
}

func defaultRules() []rule {
	return []rule{
		// Anthropic before OpenAI: both start with "sk-".
		{regexp.MustCompile(`\bsk-ant-[a-zA-Z0-9\-_]{20,}`), RedactPlaceholder},
		{regexp.MustCompile(`\bsk-(?:proj-)?[a-zA-Z0-9\-_]{20,}`), RedactPlaceholder},
		// Groq and Google AI Studio. OpenRouter keys are covered by "sk-".
		{regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`), RedactPlaceholder},
		{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), RedactPlaceholder},
		// GitHub tokens and AWS access key ids, which tools often read from
		// dotfiles.
		{regexp.MustCompile(`(?:ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`), RedactPlaceholder},
		{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), RedactPlaceholder},
		// Gateway credentials: Authorization header values and ?token=.
		{regexp.MustCompile(`(?i)(authorization:\s*(?:bearer|basic)\s+)[^\s"']+`), "${1}" + RedactPlaceholder},
		{regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9._~+/=\-]{16,}`), "${1}" + RedactPlaceholder},
		{regexp.MustCompile(`(?i)([?&](?:token|access_token|api_key)=)[^&\s"']+`), "${1}" + RedactPlaceholder},
		// Secret-named JSON fields inside tool arguments and results.
		{regexp.MustCompile(`(?i)("[a-z0-9_\-]*(?:secret|token|password|passwd|api[_-]?key|credential)s?"\s*:\s*")(?:[^"\\]|\\.)*(")`), "${1}" + RedactPlaceholder + "${2}"},
		// Shell assignments in bash commands: OPENAI_API_KEY=..., export TOKEN=...
		{regexp.MustCompile(`\b([A-Z0-9_]*(?:SECRET|TOKEN|PASSWORD|API_KEY)[A-Z0-9_]*=)[^\s"';&|]+`), "${1}" + RedactPlaceholder},
	}
}
