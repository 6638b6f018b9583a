// Package classify maps free-form user requests to a capability category.
//
// Classification escalates through three tiers and stops at the first
// confident match:
//
//   - Tier 1 (exact): slash commands, agent function-call syntax and a fixed
//     vocabulary of shell tool invocations. Confidence is always 1.0.
//   - Tier 2 (rules): a bilingual keyword table with explicit rule priorities.
//   - Tier 3 (model): a small local inference step with a keyword fallback
//     that never selects a side-effecting category.
//
// Tiers 1 and 2 are pure functions of the input and the static tables.
package classify

import "fmt"

// Category is the capability category a request belongs to.
type Category string

// Category values.
const (
	CategoryFileOperations   Category = "file_operations"
	CategoryCodeGeneration   Category = "code_generation"
	CategoryCodeAnalysis     Category = "code_analysis"
	CategoryTerminalCommands Category = "terminal_commands"
	CategoryAIChat           Category = "ai_chat"
	CategorySearchOperations Category = "search_operations"
	CategoryNoToolNeeded     Category = "no_tool_needed"
)

var categories = []Category{
	CategoryFileOperations,
	CategoryCodeGeneration,
	CategoryCodeAnalysis,
	CategoryTerminalCommands,
	CategoryAIChat,
	CategorySearchOperations,
	CategoryNoToolNeeded,
}

// Categories returns every category in a stable order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, bool) {
	for _, c := range categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Conversational reports whether the category needs no tool.
func (c Category) Conversational() bool {
	return c == CategoryAIChat || c == CategoryNoToolNeeded
}

// Layer identifies the tier that produced a result.
type Layer int

// Layer values.
const (
	LayerExact Layer = 1
	LayerRules Layer = 2
	LayerModel Layer = 3
)

func (l Layer) String() string {
	switch l {
	case LayerExact:
		return "exact"
	case LayerRules:
		return "rules"
	case LayerModel:
		return "model"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// Match types reported in Result.MatchType.
const (
	MatchSlashCommand  = "slash_command"
	MatchAgentFunction = "agent_function"
	MatchExactCommand  = "exact_command"
	MatchQuestion      = "keyword_question"
	MatchEmptyInput    = "empty_input"
	MatchModel         = "llm_classification"
	MatchModelFallback = "llm_fallback"
	MatchLowConfidence = "llm_low_confidence"
)

// Result is an immutable classification outcome.
type Result struct {
	Layer      Layer    `json:"layer"`
	Category   Category `json:"category"`
	Tool       string   `json:"tool,omitempty"`
	Confidence float64  `json:"confidence"`
	MatchType  string   `json:"match_type"`
}

// Timed pairs a result with the wall-clock time spent producing it.
type Timed struct {
	Input     string  `json:"input"`
	Result    Result  `json:"result"`
	LatencyMS float64 `json:"latency_ms"`
}
