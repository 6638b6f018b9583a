package classify

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Tool names suggested by Tier 1 matches.
const (
	ToolReadFile = "agent_read_file"
	ToolListDir  = "agent_list_dir"
	ToolSearch   = "agent_search"
	ToolShell    = "bash"
	ToolHelp     = "help"
)

type slashCommand struct {
	category Category
	tool     string
}

var slashCommands = map[string]slashCommand{
	"/read":    {CategoryFileOperations, ToolReadFile},
	"/explore": {CategoryFileOperations, ToolListDir},
	"/list":    {CategoryFileOperations, ToolListDir},
	"/scan":    {CategoryFileOperations, ToolListDir},
	"/search":  {CategorySearchOperations, ToolSearch},
	"/find":    {CategorySearchOperations, ToolSearch},
	"/help":    {CategoryAIChat, ToolHelp},
}

var agentFunctions = map[string]Category{
	"agent_read_file":       CategoryFileOperations,
	"agent_list_dir":        CategoryFileOperations,
	"agent_write_file":      CategoryFileOperations,
	"agent_create_file":     CategoryFileOperations,
	"agent_delete_file":     CategoryFileOperations,
	"agent_rename_file":     CategoryFileOperations,
	"agent_search":          CategorySearchOperations,
	"agent_find_references": CategorySearchOperations,
	"agent_find_definition": CategorySearchOperations,
}

// immediateCommands match as a bare word, or followed by shell-shaped
// arguments only (see shellArguments).
var immediateCommands = []string{"ls", "pwd", "cd", "clear", "exit", "env"}

// commandPrefixes are tool invocations recognised with or without trailing
// arguments. Bare "git" or "npm" is not enough: a subcommand is required.
var commandPrefixes = func() []string {
	var out []string
	add := func(tool string, subs ...string) {
		for _, s := range subs {
			out = append(out, tool+" "+s)
		}
	}
	add("git", "status", "log", "diff", "add", "commit", "push", "pull", "branch",
		"checkout", "merge", "stash", "reset", "rm", "mv", "clone")
	add("npm", "run", "test", "install", "uninstall", "update", "build", "start", "dev")
	add("yarn", "add", "remove", "install", "build", "test", "start", "dev")
	add("pnpm", "add", "remove", "install", "build", "test", "start", "dev")
	add("cargo", "build", "test", "run", "check", "clean", "doc", "bench", "publish",
		"install", "update")
	return out
}()

// interpreters match when followed by at least one argument.
var interpreters = []string{"node", "python", "python3", "pip", "pip3"}

var functionCallPattern = regexp.MustCompile(`(?s)^([a-z_][a-z0-9_]*)\s*\((.*)\)$`)

// MatchExact runs Tier 1 against input. It never guesses: anything outside
// the closed set of shapes is reported as no match.
func MatchExact(input string) (Result, bool) {
	s := normalize(input)
	if s == "" {
		return Result{}, false
	}
	lower := fold(s)

	if strings.HasPrefix(lower, "/") {
		head, _, _ := strings.Cut(lower, " ")
		cmd, ok := slashCommands[head]
		if !ok {
			return Result{}, false
		}
		return exact(cmd.category, cmd.tool, MatchSlashCommand), true
	}

	if m := functionCallPattern.FindStringSubmatch(lower); m != nil {
		if category, ok := agentFunctions[m[1]]; ok {
			return exact(category, m[1], MatchAgentFunction), true
		}
		return Result{}, false
	}

	if isShellInvocation(lower) {
		return exact(CategoryTerminalCommands, ToolShell, MatchExactCommand), true
	}
	return Result{}, false
}

func exact(category Category, tool, matchType string) Result {
	return Result{
		Layer:      LayerExact,
		Category:   category,
		Tool:       tool,
		Confidence: 1.0,
		MatchType:  matchType,
	}
}

func isShellInvocation(lower string) bool {
	for _, c := range immediateCommands {
		if lower == c || (strings.HasPrefix(lower, c+" ") && shellArguments(lower[len(c):])) {
			return true
		}
	}
	for _, p := range commandPrefixes {
		if lower == p || strings.HasPrefix(lower, p+" ") {
			return true
		}
	}
	for _, c := range interpreters {
		if strings.HasPrefix(lower, c+" ") && strings.TrimSpace(lower[len(c):]) != "" {
			return true
		}
	}
	return false
}

// shellArguments reports whether rest reads as command-line arguments rather
// than prose: flags plus at most one operand, or operands that all look like
// paths. "ls -la src" and "cd ../web" qualify; "cd into the folder" does not.
func shellArguments(rest string) bool {
	var operands []string
	for _, f := range strings.Fields(rest) {
		if !strings.HasPrefix(f, "-") {
			operands = append(operands, f)
		}
	}
	if len(operands) <= 1 {
		return true
	}
	for _, op := range operands {
		if !strings.ContainsAny(op, "/.~*") {
			return false
		}
	}
	return true
}

// Invocation is a Tier 1 input decoded into a tool name and arguments.
type Invocation struct {
	Tool      string
	Arguments json.RawMessage
}

// ParseInvocation decodes the arguments carried by a Tier 1 input so the
// suggested tool can be called directly:
//
//	/read docs/a.md           -> agent_read_file {"path":"docs/a.md"}
//	/search TODO              -> agent_search {"query":"TODO"}
//	agent_write_file(path="a", content="b")
//	agent_list_dir({"path":"src"})
//	git status                -> bash {"command":"git status"}
//
// It reports false when input is not a Tier 1 shape or the arguments cannot
// be decoded.
func ParseInvocation(input string) (Invocation, bool) {
	res, ok := MatchExact(input)
	if !ok || res.Tool == ToolHelp {
		return Invocation{}, false
	}
	s := normalize(input)

	var args map[string]any
	switch res.MatchType {
	case MatchSlashCommand:
		_, rest, _ := strings.Cut(s, " ")
		rest = strings.TrimSpace(rest)
		switch res.Tool {
		case ToolSearch:
			if rest == "" {
				return Invocation{}, false
			}
			args = map[string]any{"query": rest}
		default:
			if rest == "" {
				rest = "."
			}
			args = map[string]any{"path": rest}
		}
	case MatchAgentFunction:
		open := strings.IndexByte(s, '(')
		inner := strings.TrimSpace(s[open+1 : len(s)-1])
		var err error
		if args, err = parseCallArguments(inner); err != nil {
			return Invocation{}, false
		}
	case MatchExactCommand:
		args = map[string]any{"command": s}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return Invocation{}, false
	}
	return Invocation{Tool: res.Tool, Arguments: raw}, true
}

// parseCallArguments accepts either a JSON object, a single quoted path, or
// comma-separated key=value pairs with quoted or bare values.
func parseCallArguments(inner string) (map[string]any, error) {
	args := map[string]any{}
	if inner == "" {
		return args, nil
	}
	if strings.HasPrefix(inner, "{") {
		if err := json.Unmarshal([]byte(inner), &args); err != nil {
			return nil, err
		}
		return args, nil
	}
	if v, ok := unquote(inner); ok {
		args["path"] = v
		return args, nil
	}
	for _, part := range splitArgs(inner) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, strconv.ErrSyntax
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if uq, ok := unquote(value); ok {
			value = uq
		}
		args[key] = value
	}
	return args, nil
}

// splitArgs splits on commas that are not inside a quoted string.
func splitArgs(s string) []string {
	var (
		parts   []string
		start   int
		quote   byte
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], true
	}
	v, err := strconv.Unquote(s)
	return v, err == nil
}
