package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClassify_Scenarios(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	ctx := context.Background()

	tests := []struct {
		input    string
		layer    Layer
		category Category
	}{
		{"/read file.txt", LayerExact, CategoryFileOperations},
		{"读取文件", LayerRules, CategoryFileOperations},
		{"分析这段代码的性能瓶颈", LayerModel, CategoryCodeAnalysis},
		{"hello world", LayerModel, CategoryAIChat},
	}
	for _, tt := range tests {
		res := c.Classify(ctx, tt.input)
		if res.Layer != tt.layer || res.Category != tt.category {
			t.Errorf("Classify(%q) = layer %d %s, want layer %d %s",
				tt.input, res.Layer, res.Category, tt.layer, tt.category)
		}
	}
	if res := c.Classify(ctx, "/read file.txt"); res.Confidence != 1.0 {
		t.Errorf("tier 1 confidence = %v, want 1.0", res.Confidence)
	}
}

func TestClassify_EmptyInputIsConversational(t *testing.T) {
	t.Parallel()

	model := InferencerFunc(func(context.Context, string) (string, error) {
		t.Error("model must not be called for empty input")
		return "terminal_commands", nil
	})
	c := New(Config{Model: model})

	for _, input := range []string{"", "   ", "\n\t", "?!...", "？？", "。"} {
		res := c.Classify(context.Background(), input)
		if !res.Category.Conversational() {
			t.Errorf("Classify(%q) = %s, want conversational", input, res.Category)
		}
		if res.MatchType != MatchEmptyInput {
			t.Errorf("Classify(%q) match = %s, want %s", input, res.MatchType, MatchEmptyInput)
		}
	}
}

func TestClassify_ModelTier(t *testing.T) {
	t.Parallel()

	var prompts []string
	var mu sync.Mutex
	model := InferencerFunc(func(_ context.Context, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return "code_analysis\n", nil
	})
	c := New(Config{Model: model})

	res := c.Classify(context.Background(), "帮我看一下这个项目的整体架构设计")
	if res.Layer != LayerModel || res.Category != CategoryCodeAnalysis || res.MatchType != MatchModel {
		t.Errorf("result = %+v", res)
	}
	if res.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", res.Confidence)
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "帮我看一下这个项目的整体架构设计") {
		t.Errorf("prompts = %q", prompts)
	}
}

func TestClassify_ModelUnavailableDegrades(t *testing.T) {
	t.Parallel()

	model := InferencerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	c := New(Config{Model: model})

	res := c.Classify(context.Background(), "请帮我把这个目录下面所有的东西都清理掉吧")
	if res.Layer != LayerModel || res.Category != CategoryAIChat {
		t.Errorf("result = %+v, want layer 3 ai_chat", res)
	}
	if res.MatchType != MatchModelFallback {
		t.Errorf("match = %s, want %s", res.MatchType, MatchModelFallback)
	}
}

func TestClassify_ModelGarbageDegrades(t *testing.T) {
	t.Parallel()

	model := InferencerFunc(func(context.Context, string) (string, error) {
		return "rm -rf /", nil
	})
	c := New(Config{Model: model})

	res := c.Classify(context.Background(), "something long enough to skip the keyword rules")
	if res.Category != CategoryAIChat || res.MatchType != MatchModelFallback {
		t.Errorf("result = %+v", res)
	}
}

func TestClassify_LowConfidenceDegrades(t *testing.T) {
	t.Parallel()

	model := InferencerFunc(func(context.Context, string) (string, error) {
		return "terminal_commands\nmaybe", nil
	})
	c := New(Config{Model: model, MinConfidence: 0.85})

	res := c.Classify(context.Background(), "something long enough to skip the keyword rules")
	if res.Category != CategoryAIChat || res.MatchType != MatchLowConfidence {
		t.Errorf("result = %+v, want low-confidence ai_chat", res)
	}
}

func TestClassify_ModelTimeout(t *testing.T) {
	t.Parallel()

	model := InferencerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := New(Config{Model: model, ModelTimeout: 10 * time.Millisecond})

	res := c.Classify(context.Background(), "something long enough to skip the keyword rules")
	if res.MatchType != MatchModelFallback {
		t.Errorf("match = %s, want fallback after timeout", res.MatchType)
	}
}

func TestClassifyTimed_ReportsLatency(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	c := New(Config{Now: func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 1500 * time.Microsecond)
	}})

	timed := c.ClassifyTimed(context.Background(), "git status")
	if timed.LatencyMS != 1.5 {
		t.Errorf("latency = %v ms, want 1.5", timed.LatencyMS)
	}
	if timed.Input != "git status" || timed.Result.Layer != LayerExact {
		t.Errorf("timed = %+v", timed)
	}
}

func TestClassifyBatch_PreservesOrder(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	inputs := []string{"git status", "读取文件", ""}
	out := c.ClassifyBatch(context.Background(), inputs)
	if len(out) != len(inputs) {
		t.Fatalf("len = %d, want %d", len(out), len(inputs))
	}
	for i, in := range inputs {
		if out[i].Input != in {
			t.Errorf("out[%d].Input = %q, want %q", i, out[i].Input, in)
		}
	}
	if out[2].Result.Category != CategoryNoToolNeeded {
		t.Errorf("empty input category = %s", out[2].Result.Category)
	}
}

func TestClassify_ConcurrentSafe(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	want := c.Classify(context.Background(), "执行 git 命令")

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Classify(context.Background(), "执行 git 命令"); got != want {
				t.Errorf("concurrent result %+v != %+v", got, want)
			}
		}()
	}
	wg.Wait()
}
