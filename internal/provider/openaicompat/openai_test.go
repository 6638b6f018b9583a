package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/toolpipe/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "test-model"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{name: "valid without key", cfg: Config{BaseURL: "http://localhost:8080/v1", Model: "qwen"}},
		{name: "missing everything", cfg: Config{}, wantErr: []string{"base_url", "model"}},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://x", Model: "m"}, wantErr: []string{"scheme"}},
		{name: "negative tokens", cfg: Config{BaseURL: "https://x", Model: "m", MaxTokens: -1}, wantErr: []string{"max_tokens"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestConfig_APIKeyEnv(t *testing.T) {
	t.Setenv("TEST_OAI_KEY", "from-env")
	cfg := Config{BaseURL: "https://x", Model: "m", APIKeyEnv: "TEST_OAI_KEY"}.withDefaults()
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.APIKey)
	}
	if cfg.Timeout != DefaultTimeout || cfg.InferMaxTokens != DefaultInferTokens {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{{
						"id": "call_1", "type": "function",
						"function": map[string]any{"name": "agent_read_file", "arguments": `{"path":"a.txt"}`},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: "read a.txt"},
			{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c0", Name: "agent_list_dir", Arguments: json.RawMessage(`{}`)}}},
			{Role: provider.MessageRoleTool, ToolID: "c0", Content: "a.txt"},
		},
		Tools: []provider.ToolDefinition{{Name: "agent_read_file", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Model != "test-model" || len(got.Messages) != 3 || len(got.Tools) != 1 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[1].ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("arguments = %q, want {}", got.Messages[1].ToolCalls[0].Function.Arguments)
	}
	if got.Messages[2].ToolCallID != "c0" {
		t.Errorf("tool_call_id = %q", got.Messages[2].ToolCallID)
	}
	if got.Tools[0].Type != "function" {
		t.Errorf("tool type = %q", got.Tools[0].Type)
	}

	if resp.FinishReason != provider.FinishReasonToolUse {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "agent_read_file" || string(resp.ToolCalls[0].Arguments) != `{"path":"a.txt"}` {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{status: http.StatusTooManyRequests, body: "slow down", want: provider.ErrRateLimit},
		{status: http.StatusBadGateway, body: "upstream", want: provider.ErrProviderDown},
		{status: http.StatusUnauthorized, body: "bad key", want: provider.ErrAuthentication},
		{status: http.StatusBadRequest, body: `{"error":{"code":"context_length_exceeded"}}`, want: provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, tt.body, tt.status)
			})
			_, err := p.Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_PassesToolDeltas(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"Let me look."}}]}`,
			`data:{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"agent_search","arguments":"{\"query\":"}}]}}]}`,
			`: keep-alive`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"todo\"}"}}]},"finish_reason":"tool_calls"}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	})

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var (
		content string
		args    strings.Builder
		name    string
		finish  provider.FinishReason
		total   int
	)
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		content += chunk.Content
		for _, d := range chunk.ToolCalls {
			if d.Index != 0 {
				t.Errorf("index = %d", d.Index)
			}
			if d.Name != "" {
				name = d.Name
			}
			args.WriteString(d.Arguments)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			total = chunk.Usage.TotalTokens
		}
	}

	if content != "Let me look." || name != "agent_search" || args.String() != `{"query":"todo"}` {
		t.Errorf("content=%q name=%q args=%q", content, name, args.String())
	}
	if finish != provider.FinishReasonToolUse || total != 7 {
		t.Errorf("finish=%q total=%d", finish, total)
	}
}

func TestStream_MalformedChunk(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {not json\n\n")
	})
	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var last provider.StreamChunk
	for chunk := range ch {
		last = chunk
	}
	if last.Err == nil || !strings.Contains(last.Err.Error(), "parse SSE chunk") {
		t.Fatalf("last chunk = %+v", last)
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "  file_operations\n"}, "finish_reason": "stop"}},
		})
	})

	out, err := p.Infer(context.Background(), "classify: open a.txt")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if out != "file_operations" {
		t.Errorf("Infer = %q", out)
	}
	if got.MaxTokens != DefaultInferTokens || got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "classify: open a.txt" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestInfer_Empty(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": " "}}}})
	})
	if _, err := p.Infer(context.Background(), "x"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"data": []any{}})
	})
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	down := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := down.HealthCheck(context.Background()); !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want ErrProviderDown", err)
	}
}
