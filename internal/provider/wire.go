package provider

import (
	"bytes"
	"encoding/json"
)

// ToolCallType is the only tool call type the chat-completions protocol defines.
const ToolCallType = "function"

// WireMessage is one entry of a chat-completions message history.
// Content is always serialized, even when empty: several providers reject
// assistant messages whose content is null or missing.
type WireMessage struct {
	Role       MessageRole    `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// WireToolCall is a tool call as it appears in an assistant wire message.
type WireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

// WireFunction carries the function name and its JSON-encoded arguments.
type WireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToWire converts provider-neutral messages to the wire format.
func ToWire(msgs []LLMMessage) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := WireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolID,
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]WireToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, WireToolCall{
					ID:   tc.ID,
					Type: ToolCallType,
					Function: WireFunction{
						Name:      tc.Name,
						Arguments: ArgumentsString(tc.Arguments),
					},
				})
			}
		}
		out = append(out, wm)
	}
	return out
}

// FromWireToolCalls converts wire tool calls back to provider-neutral calls.
// Argument text that is not a JSON object is kept through ArgumentsFromText,
// so ToWire sends it back exactly as received.
func FromWireToolCalls(calls []WireToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: ArgumentsFromText(c.Function.Arguments),
		})
	}
	return out
}

// ArgumentsFromText turns the argument text a model produced into tool
// arguments. A JSON object is used as is. Anything else (malformed JSON, or
// a JSON value that is not an object) is wrapped in a JSON string literal:
// the arguments stay valid JSON for storage, tool schema validation rejects
// them, and ArgumentsString recovers the original text. Blank text yields nil.
func ArgumentsFromText(text string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' && json.Valid(trimmed) {
		return json.RawMessage(text)
	}
	wrapped, _ := json.Marshal(text)
	return wrapped
}

// ArgumentsString renders tool arguments as the string the wire format
// expects. Empty arguments become "{}". Text wrapped by ArgumentsFromText is
// unwrapped, and everything else is returned byte for byte.
func ArgumentsString(args json.RawMessage) string {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 {
		return "{}"
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return text
		}
	}
	return string(args)
}
