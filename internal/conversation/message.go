// Package conversation holds threads of user, assistant and tool messages
// and the storage contract for them.
package conversation

import (
	"fmt"
	"time"

	"github.com/flemzord/toolpipe/internal/toolcall"
)

// Role identifies who produced a message.
type Role string

// Role values.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of a thread. The ToolCalls slice is fixed when the
// message is appended; the calls themselves advance through their lifecycle
// in place.
type Message struct {
	ID      string
	Role    Role
	Content string

	// ToolCalls are the calls an assistant message requested, in
	// declaration order.
	ToolCalls []*toolcall.Call

	// ToolCallID is set only on tool messages.
	ToolCallID string

	CreatedAt time.Time
}

// NewUserMessage creates a user message.
func NewUserMessage(id, content string, at time.Time) *Message {
	return &Message{ID: id, Role: RoleUser, Content: content, CreatedAt: at}
}

// NewAssistantMessage creates an assistant message carrying calls.
func NewAssistantMessage(id, content string, calls []*toolcall.Call, at time.Time) *Message {
	return &Message{ID: id, Role: RoleAssistant, Content: content, ToolCalls: calls, CreatedAt: at}
}

// NewToolMessage creates a tool message answering callID.
func NewToolMessage(id, callID, content string, at time.Time) *Message {
	return &Message{ID: id, Role: RoleTool, Content: content, ToolCallID: callID, CreatedAt: at}
}

// Validate checks the structural rules of a single message.
func (m *Message) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidMessage)
	case !m.Role.Valid():
		return fmt.Errorf("%w: %s: unknown role %q", ErrInvalidMessage, m.ID, m.Role)
	case m.Role == RoleTool && m.ToolCallID == "":
		return fmt.Errorf("%w: %s: tool message without tool_call_id", ErrInvalidMessage, m.ID)
	case m.Role != RoleTool && m.ToolCallID != "":
		return fmt.Errorf("%w: %s: tool_call_id on %s message", ErrInvalidMessage, m.ID, m.Role)
	case m.Role != RoleAssistant && len(m.ToolCalls) > 0:
		return fmt.Errorf("%w: %s: tool calls on %s message", ErrInvalidMessage, m.ID, m.Role)
	}
	return nil
}

// Record is the storable form of a Message.
type Record struct {
	ID         string              `json:"id"`
	Role       Role                `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []toolcall.Snapshot `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Record snapshots the message and its calls.
func (m *Message) Record() Record {
	r := Record{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		CreatedAt:  m.CreatedAt,
	}
	for _, c := range m.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, c.Snapshot())
	}
	return r
}

// FromRecord rebuilds a message, restoring its calls.
func FromRecord(r Record) *Message {
	m := &Message{
		ID:         r.ID,
		Role:       r.Role,
		Content:    r.Content,
		ToolCallID: r.ToolCallID,
		CreatedAt:  r.CreatedAt,
	}
	for _, s := range r.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, toolcall.Restore(s))
	}
	return m
}
