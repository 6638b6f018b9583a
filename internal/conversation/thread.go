package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/toolcall"
)

// ThreadInfo is a thread's metadata.
type ThreadInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is an append-only list of messages. Safe for concurrent use.
type Thread struct {
	info ThreadInfo

	mu       sync.RWMutex
	messages []*Message
	ids      map[string]struct{}
}

// NewThread creates an empty thread.
func NewThread(info ThreadInfo) *Thread {
	return &Thread{info: info, ids: make(map[string]struct{})}
}

// Load rebuilds a thread from stored records. Records that fail validation
// are skipped and returned as errors alongside the thread.
func Load(info ThreadInfo, records []Record) (*Thread, []error) {
	t := NewThread(info)
	var errs []error
	for _, r := range records {
		if err := t.Append(FromRecord(r)); err != nil {
			errs = append(errs, err)
		}
	}
	return t, errs
}

// Info returns the thread metadata.
func (t *Thread) Info() ThreadInfo { return t.info }

// ID returns the thread id.
func (t *Thread) ID() string { return t.info.ID }

// Append adds m to the end of the thread.
func (t *Thread) Append(m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.ids[m.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, m.ID)
	}
	t.ids[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	return nil
}

// Messages returns the messages in order. The slice is a copy; the messages
// are shared.
func (t *Thread) Messages() []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, or nil for an empty thread.
func (t *Thread) Last() *Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// FindCall returns the call with the given id and the message owning it.
func (t *Thread) FindCall(callID string) (*toolcall.Call, *Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.messages {
		for _, c := range m.ToolCalls {
			if c.ID() == callID {
				return c, m, true
			}
		}
	}
	return nil, nil, false
}

// Calls returns every call in the thread in declaration order.
func (t *Thread) Calls() []*toolcall.Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*toolcall.Call
	for _, m := range t.messages {
		out = append(out, m.ToolCalls...)
	}
	return out
}

// Records snapshots every message.
func (t *Thread) Records() []Record {
	msgs := t.Messages()
	out := make([]Record, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Record())
	}
	return out
}
