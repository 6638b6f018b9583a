package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flemzord/toolpipe/internal/provider"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content,omitempty"`
			ToolCalls []struct {
				Index    int                   `json:"index"`
				ID       string                `json:"id,omitempty"`
				Function provider.WireFunction `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage,omitempty"`
}

// readSSE decodes an SSE body into StreamChunks and hands each to emit until
// [DONE], an error, or emit returning false. Tool call fragments are passed
// through as deltas keyed by index; assembling them is the caller's job.
func readSSE(ctx context.Context, scanner *bufio.Scanner, emit func(provider.StreamChunk) bool) {
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			emit(provider.StreamChunk{Err: err})
			return
		}

		// Some servers omit the space after "data:".
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)})
			return
		}

		var sc provider.StreamChunk
		if chunk.Usage != nil {
			u := chunk.Usage.toProvider()
			sc.Usage = &u
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			sc.Content = choice.Delta.Content
			for _, tc := range choice.Delta.ToolCalls {
				sc.ToolCalls = append(sc.ToolCalls, provider.ToolCallDelta{
					Index:     tc.Index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			if choice.FinishReason != nil {
				sc.FinishReason = mapFinishReason(*choice.FinishReason)
			}
		}

		if sc.Content == "" && len(sc.ToolCalls) == 0 && sc.FinishReason == "" && sc.Usage == nil {
			continue
		}
		if !emit(sc) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			emit(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		emit(provider.StreamChunk{Err: fmt.Errorf("%w: stream read error: %w", provider.ErrProviderDown, err)})
	}
}
