package gateway

import (
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/subagent"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

func TestHub_FiltersBySession(t *testing.T) {
	t.Parallel()
	h := NewHub()

	all, cancelAll := h.Subscribe("")
	defer cancelAll()
	one, cancelOne := h.Subscribe("s1")
	defer cancelOne()

	h.PublishCall(toolcall.Event{CallID: "c1", SessionID: "s1", To: toolcall.StatusPending})
	h.PublishAgent(subagent.Snap{ID: "a1", SessionID: "s2", Status: subagent.StatusRunning})

	if got := len(all); got != 2 {
		t.Errorf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(one); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	env := <-one
	if env.Type != EnvelopeToolCall || env.Call.CallID != "c1" {
		t.Errorf("envelope = %+v", env)
	}
	if env.At.IsZero() {
		t.Error("envelope timestamp not set")
	}
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	h := NewHub()
	_, cancel := h.Subscribe("")
	defer cancel()

	for range subscriberBuffer + 3 {
		h.Publish(Envelope{Type: EnvelopeAgent, SessionID: "s1", At: time.Now()})
	}
	if got := h.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestHub_CancelAndClose(t *testing.T) {
	t.Parallel()
	h := NewHub()

	ch, cancel := h.Subscribe("")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}

	ch2, cancel2 := h.Subscribe("")
	defer cancel2()
	h.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel open after Close")
	}
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after Close", h.Subscribers())
	}

	late, _ := h.Subscribe("")
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
	h.Publish(Envelope{Type: EnvelopeAgent})
}
