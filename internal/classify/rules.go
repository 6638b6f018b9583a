package classify

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Rule is one Tier 2 table entry. A rule fires when the folded input
// starts with any Prefix, contains any Keyword, or contains any Mark as a
// plain substring. A rule with Requires only matches if, in addition, one of
// those keywords occurs in the input.
//
// When several rules match, the highest Priority wins; equal priorities fall
// back to declaration order. Priorities are explicit so that reordering the
// table never changes results.
type Rule struct {
	Name       string
	Category   Category
	Priority   int
	Confidence float64
	MatchType  string
	Keywords   []string
	Prefixes   []string
	Marks      []string
	Requires   []string
}

func (r Rule) matches(s string) bool {
	if !r.fires(s) {
		return false
	}
	if len(r.Requires) == 0 {
		return true
	}
	for _, kw := range r.Requires {
		if containsKeyword(s, kw) {
			return true
		}
	}
	return false
}

func (r Rule) fires(s string) bool {
	for _, p := range r.Prefixes {
		if hasKeywordPrefix(s, p) {
			return true
		}
	}
	for _, m := range r.Marks {
		if strings.Contains(s, m) {
			return true
		}
	}
	for _, kw := range r.Keywords {
		if containsKeyword(s, kw) {
			return true
		}
	}
	return false
}

// Rule priorities, highest first.
const (
	PriorityQuestion = 100
	PriorityTerminal = 90
	PrioritySearch   = 80
	PriorityFile     = 70
	PriorityAnalysis = 60
	PriorityCodegen  = 50
	PriorityChat     = 10
)

var chatKeywords = []string{"什么是", "怎么", "如何", "为什么", "what is", "how to", "why", "explain "}

// DefaultRules returns the built-in bilingual (zh/en) rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "question",
			Category:   CategoryAIChat,
			Priority:   PriorityQuestion,
			Confidence: 0.8,
			MatchType:  MatchQuestion,
			// A question mark or a question opener only counts when a chat
			// keyword is present; "read file?" is still a file operation.
			Prefixes: chatKeywords,
			Marks:    []string{"?"},
			Requires: chatKeywords,
		},
		{
			Name:       "terminal",
			Category:   CategoryTerminalCommands,
			Priority:   PriorityTerminal,
			Confidence: 0.92,
			MatchType:  "keyword_terminal",
			Keywords: []string{
				"执行", "运行", "构建", "编译", "测试",
				"git", "npm", "yarn", "pnpm", "cargo", "pip", "python", "node",
			},
		},
		{
			Name:       "search",
			Category:   CategorySearchOperations,
			Priority:   PrioritySearch,
			Confidence: 0.9,
			MatchType:  "keyword_search",
			Keywords: []string{
				"查找", "搜索", "定位", "寻找", "找",
				"find", "search", "locate", "look for",
			},
		},
		{
			Name:       "file",
			Category:   CategoryFileOperations,
			Priority:   PriorityFile,
			Confidence: 0.9,
			MatchType:  "keyword_file_operations",
			Keywords: []string{
				"读取", "打开", "查看", "保存", "写入", "删除", "重命名", "移动", "复制", "编辑", "修改",
				"read", "open", "view", "save", "delete", "remove", "rename", "move", "copy", "edit", "modify",
			},
		},
		{
			Name:       "analysis",
			Category:   CategoryCodeAnalysis,
			Priority:   PriorityAnalysis,
			Confidence: 0.88,
			MatchType:  "keyword_code_analysis",
			Keywords: []string{
				"解释", "分析", "审查", "理解",
				"explain", "analyze", "analyse", "review", "understand", "inspect", "examine",
			},
		},
		{
			Name:       "codegen",
			Category:   CategoryCodeGeneration,
			Priority:   PriorityCodegen,
			Confidence: 0.85,
			MatchType:  "keyword_code_generation",
			Keywords: []string{
				"生成", "创建", "编写", "重构", "优化", "写",
				"generate", "create", "write", "refactor", "optimize", "implement", "build", "develop",
			},
		},
		{
			Name:       "chat",
			Category:   CategoryAIChat,
			Priority:   PriorityChat,
			Confidence: 0.8,
			MatchType:  MatchQuestion,
			Keywords:   chatKeywords,
		},
	}
}

// DefaultDeferMarkers are phrases that signal context-dependent requests
// ("explain this piece", "the project's architecture") that keyword rules
// routinely misroute. Inputs containing them skip Tier 2.
func DefaultDeferMarkers() []string {
	return []string{"一下", "这段", "项目的", "原理", "架构"}
}

// DefaultMaxRuleRunes is the longest input Tier 2 will judge. Longer inputs
// carry enough context that keyword hits are unreliable.
const DefaultMaxRuleRunes = 20

// RuleSet is an immutable, priority-ordered Tier 2 table.
type RuleSet struct {
	rules        []Rule
	maxRunes     int
	deferMarkers []string
}

// NewRuleSet builds a rule set. A nil rules slice selects DefaultRules, a
// nil markers slice selects DefaultDeferMarkers and maxRunes <= 0 selects
// DefaultMaxRuleRunes.
func NewRuleSet(rules []Rule, markers []string, maxRunes int) *RuleSet {
	if rules == nil {
		rules = DefaultRules()
	}
	if markers == nil {
		markers = DefaultDeferMarkers()
	}
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRuleRunes
	}

	sorted := make([]Rule, len(rules))
	for i, r := range rules {
		r.Keywords = foldAll(r.Keywords)
		r.Prefixes = foldAll(r.Prefixes)
		r.Marks = foldAll(r.Marks)
		r.Requires = foldAll(r.Requires)
		sorted[i] = r
	}
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return &RuleSet{rules: sorted, maxRunes: maxRunes, deferMarkers: markers}
}

// Rules returns the rules in evaluation order.
func (s *RuleSet) Rules() []Rule {
	return slices.Clone(s.rules)
}

// Match runs Tier 2 against input.
func (s *RuleSet) Match(input string) (Result, bool) {
	n := normalize(input)
	if n == "" || utf8.RuneCountInString(n) > s.maxRunes {
		return Result{}, false
	}
	for _, m := range s.deferMarkers {
		if strings.Contains(n, m) {
			return Result{}, false
		}
	}

	lower := fold(n)
	for _, r := range s.rules {
		if r.matches(lower) {
			return Result{
				Layer:      LayerRules,
				Category:   r.Category,
				Confidence: r.Confidence,
				MatchType:  r.MatchType,
			}, true
		}
	}
	return Result{}, false
}

func foldAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fold(s)
	}
	return out
}
