package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	KindToolCall = "tool_call"
	KindRequest  = "request"
)

// RateLimitConfig holds configurable rate limits.
type RateLimitConfig struct {
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	RequestsPerMin  int `yaml:"requests_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.ToolCallsPerMin <= 0 {
		c.ToolCallsPerMin = 120
	}
	if c.RequestsPerMin <= 0 {
		c.RequestsPerMin = 600
	}
	return c
}

// RateLimiter implements sliding-window rate limiting per (kind, key).
// Keys are typically session IDs, so one busy session never throttles another.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	window  time.Duration
	buckets map[bucketKey][]time.Time
	now     func() time.Time
}

type bucketKey struct {
	kind string
	key  string
}

// NewRateLimiter creates a rate limiter with a one-minute window.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	return &RateLimiter{
		limits: map[string]int{
			KindToolCall: cfg.ToolCallsPerMin,
			KindRequest:  cfg.RequestsPerMin,
		},
		window:  time.Minute,
		buckets: make(map[bucketKey][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event of kind for key. It returns ErrRateLimited when
// the window is full. Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	k := bucketKey{kind: kind, key: key}
	events := evict(rl.buckets[k], now.Add(-rl.window))
	if len(events) >= limit {
		rl.buckets[k] = events
		return ErrRateLimited
	}
	rl.buckets[k] = append(events, now)
	return nil
}

// Prune drops buckets with no events inside the window and returns how many
// were removed.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	removed := 0
	for k, events := range rl.buckets {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.buckets, k)
			removed++
		}
	}
	return removed
}

// evict removes events before cutoff. Events are chronologically ordered.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
