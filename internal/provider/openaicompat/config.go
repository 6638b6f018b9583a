package openaicompat

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Defaults for Config.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultInferTokens = 16
)

// Config holds the configuration for an OpenAI-compatible endpoint. The same
// shape serves the agent model and the local classification model; a local
// server (llama.cpp, vLLM, Ollama) usually needs no key.
type Config struct {
	BaseURL   string            `yaml:"base_url"`
	APIKey    string            `yaml:"api_key"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Model     string            `yaml:"model"`
	MaxTokens int               `yaml:"max_tokens"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`

	// InferMaxTokens caps the completion used for single-prompt inference.
	InferMaxTokens int `yaml:"infer_max_tokens"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.InferMaxTokens <= 0 {
		c.InferMaxTokens = DefaultInferTokens
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	return c
}

// Validate returns every problem with c joined together.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errMissingField("base_url"))
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("openaicompat: base_url is not a valid URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("openaicompat: base_url scheme must be http or https, got %q", u.Scheme))
	}
	if c.Model == "" {
		errs = append(errs, errMissingField("model"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("openaicompat: max_tokens must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("openaicompat: timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func errMissingField(field string) error {
	return fmt.Errorf("openaicompat: %s is required", field)
}
