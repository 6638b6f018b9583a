// Package builtin provides the tools shipped with toolpipe. File-system
// tools are confined to the call's root path; the shell tool runs there with
// a sanitized environment.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/flemzord/toolpipe/internal/tool"
)

// Defaults for Config.
const (
	DefaultMaxReadBytes   = 200_000
	DefaultMaxOutputBytes = 64_000
	DefaultMaxEntries     = 500
	DefaultMaxResults     = 100
	DefaultShellTimeout   = 60 * time.Second
)

// Config tunes the built-in tools.
type Config struct {
	MaxReadBytes   int           `yaml:"max_read_bytes"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	MaxEntries     int           `yaml:"max_entries"`
	MaxResults     int           `yaml:"max_results"`
	ShellTimeout   time.Duration `yaml:"shell_timeout"`

	// DisableShell leaves the bash tool unregistered.
	DisableShell bool `yaml:"disable_shell"`

	// Secrets are scrubbed from the shell environment.
	Secrets []string `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.MaxReadBytes <= 0 {
		c.MaxReadBytes = DefaultMaxReadBytes
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.ShellTimeout <= 0 {
		c.ShellTimeout = DefaultShellTimeout
	}
	return c
}

// Tools returns the built-in tools for cfg.
func Tools(cfg Config) []tool.Tool {
	cfg = cfg.withDefaults()
	tools := []tool.Tool{
		newReadFile(cfg),
		newWriteFile(),
		newListDir(cfg),
		newSearch(cfg),
	}
	if !cfg.DisableShell {
		tools = append(tools, newShell(cfg))
	}
	return tools
}

// Register adds the built-in tools to reg.
func Register(reg *tool.Registry, cfg Config) error {
	for _, t := range Tools(cfg) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// meta is the static description of a typed tool.
type meta struct {
	name        string
	description string
	schema      string
	category    tool.Category
	approval    bool
	dangerous   bool
}

// typed adapts a handler over a decoded request struct to tool.Tool.
type typed[Req any] struct {
	meta
	run func(ctx context.Context, req Req, env tool.ExecutionEnv) (tool.Output, error)
}

func (t *typed[Req]) Name() string            { return t.name }
func (t *typed[Req]) Description() string     { return t.description }
func (t *typed[Req]) Schema() json.RawMessage { return json.RawMessage(t.schema) }
func (t *typed[Req]) Category() tool.Category { return t.category }
func (t *typed[Req]) RequiresApproval() bool  { return t.approval }
func (t *typed[Req]) IsDangerous() bool       { return t.dangerous }

// Execute decodes args into Req and runs the handler.
func (t *typed[Req]) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	req, err := decode[Req](args)
	if err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	return t.run(ctx, req, env)
}

// decode maps JSON arguments onto Req using its json tags. Numbers arrive as
// float64 from encoding/json and are narrowed by mapstructure.
func decode[Req any](args json.RawMessage) (Req, error) {
	var req Req
	raw := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &raw); err != nil {
			return req, err
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &req,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return req, err
	}
	if err := dec.Decode(raw); err != nil {
		return req, err
	}
	return req, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
