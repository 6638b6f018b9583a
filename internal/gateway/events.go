package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/toolpipe/internal/subagent"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// Envelope types sent on /ws/events.
const (
	EnvelopeToolCall = "tool_call"
	EnvelopeAgent    = "agent"
)

// Envelope is one message on the event stream. Exactly one of Call and
// Agent is set, matching Type.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Call      *toolcall.Event `json:"call,omitempty"`
	Agent     *subagent.Snap  `json:"agent,omitempty"`
	At        time.Time       `json:"at"`
}

// subscriberBuffer is the per-subscriber queue. A subscriber that falls
// this far behind loses events rather than stalling publishers.
const subscriberBuffer = 64

type subscriber struct {
	session string
	ch      chan Envelope
}

// Hub fans lifecycle events out to websocket subscribers. Publishing never
// blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	dropped atomic.Int64
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), now: time.Now}
}

// PublishCall publishes a tool call lifecycle event. It matches the
// signature of toolcall.Machine subscribers.
func (h *Hub) PublishCall(ev toolcall.Event) {
	h.Publish(Envelope{Type: EnvelopeToolCall, SessionID: ev.SessionID, Call: &ev, At: ev.At})
}

// PublishAgent publishes a sub-agent status change.
func (h *Hub) PublishAgent(s subagent.Snap) {
	h.Publish(Envelope{Type: EnvelopeAgent, SessionID: s.SessionID, Agent: &s, At: s.UpdatedAt})
}

// Publish delivers env to every subscriber watching its session.
func (h *Hub) Publish(env Envelope) {
	if env.At.IsZero() {
		env.At = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.session != "" && s.session != env.SessionID {
			continue
		}
		select {
		case s.ch <- env:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. An empty session receives every event.
// The returned cancel function is idempotent and closes the channel.
func (h *Hub) Subscribe(session string) (<-chan Envelope, func()) {
	s := &subscriber{session: session, ch: make(chan Envelope, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}
