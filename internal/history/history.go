// Package history turns a conversation thread into the message sequence a
// chat-completions provider accepts. Every tool call in the output is
// followed by exactly one tool message answering it, in declaration order.
package history

import (
	"fmt"

	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// Build reconstructs msgs as provider messages. Only terminal calls
// (completed, failed, rejected) are emitted, each followed by its tool
// message. Calls still pending, approved or running are left out until they
// resolve; an assistant message left with neither content nor calls is
// dropped. Explicit tool messages that answer a call already paired are
// skipped. Any other inconsistency fails the whole build with
// ErrHistoryMalformed.
func Build(msgs []*conversation.Message) ([]provider.LLMMessage, error) {
	out := make([]provider.LLMMessage, 0, len(msgs))
	seenCalls := make(map[string]struct{})
	paired := make(map[string]struct{})

	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHistoryMalformed, err)
		}

		switch m.Role {
		case conversation.RoleUser:
			out = append(out, provider.LLMMessage{Role: provider.MessageRoleUser, Content: m.Content})

		case conversation.RoleAssistant:
			assistant := provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: m.Content}
			var results []provider.LLMMessage
			for _, c := range m.ToolCalls {
				s := c.Snapshot()
				if s.ID == "" {
					return nil, fmt.Errorf("%w: message %s: tool call without id", ErrHistoryMalformed, m.ID)
				}
				if _, dup := seenCalls[s.ID]; dup {
					return nil, fmt.Errorf("%w: duplicate tool call id %s", ErrHistoryMalformed, s.ID)
				}
				seenCalls[s.ID] = struct{}{}

				if !s.Status.Terminal() {
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, provider.ToolCall{
					ID:        s.ID,
					Name:      s.ToolName,
					Arguments: s.ArgumentsJSON(),
				})
				results = append(results, provider.LLMMessage{
					Role:    provider.MessageRoleTool,
					Content: s.Content(),
					ToolID:  s.ID,
				})
				paired[s.ID] = struct{}{}
			}
			if assistant.Content == "" && len(assistant.ToolCalls) == 0 {
				continue
			}
			out = append(out, assistant)
			out = append(out, results...)

		case conversation.RoleTool:
			if _, ok := paired[m.ToolCallID]; ok {
				continue
			}
			return nil, fmt.Errorf("%w: tool message %s answers unknown call %s", ErrHistoryMalformed, m.ID, m.ToolCallID)
		}
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildWire reconstructs msgs in the wire format.
func BuildWire(msgs []*conversation.Message) ([]provider.WireMessage, error) {
	llm, err := Build(msgs)
	if err != nil {
		return nil, err
	}
	return provider.ToWire(llm), nil
}

// Validate checks a provider message sequence: every tool message must
// answer a call of the nearest preceding assistant message, each call is
// answered exactly once, and no other message may appear before all calls
// of an assistant message are answered.
func Validate(msgs []provider.LLMMessage) error {
	var open []string
	answered := make(map[string]bool)

	for i, m := range msgs {
		switch m.Role {
		case provider.MessageRoleTool:
			if len(open) == 0 {
				return fmt.Errorf("%w: message %d: tool message without preceding call", ErrHistoryMalformed, i)
			}
			if m.ToolID != open[0] {
				return fmt.Errorf("%w: message %d: tool_call_id %q, want %q", ErrHistoryMalformed, i, m.ToolID, open[0])
			}
			answered[m.ToolID] = true
			open = open[1:]

		default:
			if len(open) > 0 {
				return fmt.Errorf("%w: message %d: call %s left unanswered", ErrHistoryMalformed, i, open[0])
			}
			if m.Role == provider.MessageRoleAssistant {
				for _, tc := range m.ToolCalls {
					if tc.ID == "" || answered[tc.ID] {
						return fmt.Errorf("%w: message %d: invalid tool call id %q", ErrHistoryMalformed, i, tc.ID)
					}
					open = append(open, tc.ID)
				}
			}
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: call %s left unanswered", ErrHistoryMalformed, open[0])
	}
	return nil
}

// Sanitize returns a copy of msgs without calls that have not reached a
// terminal state and without assistant messages emptied by that. Tool
// messages whose call is gone are dropped as well. Used on threads loaded
// from storage, where a crash can leave calls approved or running forever.
func Sanitize(msgs []*conversation.Message) []*conversation.Message {
	out := make([]*conversation.Message, 0, len(msgs))
	kept := make(map[string]struct{})

	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleAssistant:
			var calls []*toolcall.Call
			for _, c := range m.ToolCalls {
				if c.Status().Terminal() {
					calls = append(calls, c)
					kept[c.ID()] = struct{}{}
				}
			}
			if m.Content == "" && len(calls) == 0 {
				continue
			}
			cp := *m
			cp.ToolCalls = calls
			out = append(out, &cp)

		case conversation.RoleTool:
			if _, ok := kept[m.ToolCallID]; ok {
				out = append(out, m)
			}

		default:
			out = append(out, m)
		}
	}
	return out
}

// Unresolved returns the calls in msgs that have not reached a terminal
// state, in declaration order.
func Unresolved(msgs []*conversation.Message) []*toolcall.Call {
	var out []*toolcall.Call
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			if !c.Status().Terminal() {
				out = append(out, c)
			}
		}
	}
	return out
}
