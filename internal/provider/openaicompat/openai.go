// Package openaicompat talks to any server implementing the OpenAI chat
// completions API. It backs both the agent model and the local model used
// for Tier 3 classification.
package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/provider"
)

// ErrEmptyCompletion is returned by Infer when the model produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider is an OpenAI-compatible chat-completions client.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New validates cfg and returns a Provider.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg: cfg,
		// A client-wide timeout would cut long SSE streams; requests are
		// bounded by their context instead.
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
		},
		logger: logger.With("model", cfg.Model),
	}, nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.post(ctx, buildRequest(p.cfg.Model, p.cfg.MaxTokens, req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, errorFromResponse(resp)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(body), nil
}

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	resp, err := p.post(ctx, buildRequest(p.cfg.Model, p.cfg.MaxTokens, req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, errorFromResponse(resp)
	}

	// Long tool-call arguments can produce SSE lines well beyond the
	// scanner's default limit.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		readSSE(ctx, scanner, func(chunk provider.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.cfg.Model
}

// Infer implements classify.Inferencer: the prompt is sent as a single user
// message with temperature 0 and a small token cap.
func (p *Provider) Infer(ctx context.Context, prompt string) (string, error) {
	zero := 0.0
	resp, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: prompt}},
		MaxTokens:   p.cfg.InferMaxTokens,
		Temperature: &zero,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	p.logger.Debug("inference complete", "tokens", resp.Usage.TotalTokens)
	return text, nil
}

// HealthCheck implements provider.HealthChecker by probing /models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ classify.Inferencer    = (*Provider)(nil)
)
