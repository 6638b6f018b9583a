package agent

import (
	"encoding/json"

	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// loopDetector counts identical call signatures across one run.
type loopDetector struct {
	threshold int
	counts    map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{threshold: threshold, counts: make(map[string]int)}
}

// signature is the tool name plus canonical JSON arguments, so
// {"a":1,"b":2} and {"b":2,"a":1} collide.
func signature(s toolcall.Snapshot) string {
	args := s.ArgumentsJSON()
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return s.ToolName + ":" + string(args)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return s.ToolName + ":" + string(args)
	}
	return s.ToolName + ":" + string(canon)
}

// record counts the call and reports whether its signature reached the
// threshold.
func (d *loopDetector) record(s toolcall.Snapshot) bool {
	key := signature(s)
	d.counts[key]++
	return d.counts[key] >= d.threshold
}

// tokenTracker accumulates usage for a single run. Not safe for concurrent
// use.
type tokenTracker struct {
	budget int
	usage  provider.TokenUsage
}

func newTokenTracker(budget int) *tokenTracker {
	return &tokenTracker{budget: budget}
}

func (t *tokenTracker) add(u provider.TokenUsage) {
	t.usage.PromptTokens += u.PromptTokens
	t.usage.CompletionTokens += u.CompletionTokens
	t.usage.TotalTokens += u.TotalTokens
}

// exceeded reports whether usage reached the budget. Zero is unlimited.
func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}

func (t *tokenTracker) total() provider.TokenUsage { return t.usage }
