package security

import (
	"errors"
	"testing"
	"time"
)

func newTestLimiter(cfg RateLimitConfig, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{ToolCallsPerMin: 3}, &now)

	for i := range 3 {
		if err := rl.Allow(KindToolCall, "s1"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow(KindToolCall, "s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("4th call = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{ToolCallsPerMin: 1}, &now)

	if err := rl.Allow(KindToolCall, "s1"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if err := rl.Allow(KindToolCall, "s1"); err == nil {
		t.Fatal("second call inside window was allowed")
	}
	now = now.Add(31 * time.Second)
	if err := rl.Allow(KindToolCall, "s1"); err != nil {
		t.Fatalf("call after window: %v", err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{ToolCallsPerMin: 1}, &now)

	if err := rl.Allow(KindToolCall, "a"); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(KindToolCall, "b"); err != nil {
		t.Errorf("session b throttled by session a: %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow("unknown", "x"); err != nil {
			t.Fatalf("unknown kind limited: %v", err)
		}
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(RateLimitConfig{}, &now)
	_ = rl.Allow(KindToolCall, "a")
	_ = rl.Allow(KindRequest, "b")

	if n := rl.Prune(); n != 0 {
		t.Errorf("Prune inside window removed %d", n)
	}
	now = now.Add(2 * time.Minute)
	if n := rl.Prune(); n != 2 {
		t.Errorf("Prune after window removed %d, want 2", n)
	}
}
