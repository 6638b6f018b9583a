package classify

import (
	"context"
	"fmt"
	"strings"
)

// Inferencer runs a single prompt through a small local model and returns
// its raw text output.
type Inferencer interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// InferencerFunc adapts a function to the Inferencer interface.
type InferencerFunc func(ctx context.Context, prompt string) (string, error)

// Infer calls f.
func (f InferencerFunc) Infer(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Model confidences.
const (
	modelConfidenceSingleLine = 0.88
	modelConfidenceMultiLine  = 0.82
	fallbackConfidenceHint    = 0.6
	fallbackConfidenceDefault = 0.5
)

const promptTemplate = `Classify the user request into exactly one category.

Categories:
- file_operations: read, write, list, rename or delete files
- code_generation: write, create or refactor code
- code_analysis: explain, review or analyze existing code
- terminal_commands: run shell, git, package manager or build commands
- search_operations: find code, symbols or text
- ai_chat: general questions and conversation
- no_tool_needed: greetings or requests that need no action

Examples:
Request: 读取 main.go
Category: file_operations
Request: explain how this function handles errors
Category: code_analysis
Request: 帮我写一个排序函数
Category: code_generation
Request: what is a closure
Category: ai_chat

Answer with the category name only.
Request: %s
Category:`

// BuildPrompt renders the few-shot classification prompt for input.
func BuildPrompt(input string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(input))
}

// ParseModelOutput extracts a category from raw model output. Only the first
// line is considered and it must name a category exactly; multi-line answers
// are trusted slightly less.
func ParseModelOutput(output string) (Category, float64, bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "", 0, false
	}
	first, _, multi := strings.Cut(trimmed, "\n")
	first = strings.Trim(fold(strings.TrimSpace(first)), "`'\".")
	first = strings.TrimSpace(strings.TrimPrefix(first, "category:"))

	category, ok := ParseCategory(first)
	if !ok {
		return "", 0, false
	}
	if multi {
		return category, modelConfidenceMultiLine, true
	}
	return category, modelConfidenceSingleLine, true
}

// keywordFallback stands in for the model when it is unavailable or returns
// something unparseable. It only ever picks read-only or conversational
// categories.
func keywordFallback(input string) Result {
	lower := fold(normalize(input))
	mentionsCode := strings.Contains(lower, "代码") || containsKeyword(lower, "code")

	res := Result{
		Layer:      LayerModel,
		Category:   CategoryAIChat,
		Confidence: fallbackConfidenceDefault,
		MatchType:  MatchModelFallback,
	}
	switch {
	case mentionsCode && containsAny(lower, "分析", "解释", "analyze", "explain", "review"):
		res.Category = CategoryCodeAnalysis
		res.Confidence = fallbackConfidenceHint
	case mentionsCode && containsAny(lower, "生成", "创建", "写", "generate", "create", "write"):
		res.Category = CategoryCodeGeneration
		res.Confidence = fallbackConfidenceHint
	case strings.Contains(lower, "?"):
		res.Confidence = fallbackConfidenceHint
	}
	return res
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if containsKeyword(s, kw) {
			return true
		}
	}
	return false
}
