package classify

import "testing"

func TestParseModelOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output     string
		category   Category
		confidence float64
		ok         bool
	}{
		{"code_analysis", CategoryCodeAnalysis, 0.88, true},
		{"  File_Operations \n", CategoryFileOperations, 0.88, true},
		{"Category: search_operations", CategorySearchOperations, 0.88, true},
		{"`ai_chat`", CategoryAIChat, 0.88, true},
		{"terminal_commands\nbecause it runs git", CategoryTerminalCommands, 0.82, true},
		{"I think this is code analysis", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		category, confidence, ok := ParseModelOutput(tt.output)
		if ok != tt.ok || category != tt.category || confidence != tt.confidence {
			t.Errorf("ParseModelOutput(%q) = (%s, %v, %v), want (%s, %v, %v)",
				tt.output, category, confidence, ok, tt.category, tt.confidence, tt.ok)
		}
	}
}

func TestKeywordFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input      string
		category   Category
		confidence float64
	}{
		{"分析这段代码的性能瓶颈", CategoryCodeAnalysis, 0.6},
		{"please explain this code to me in detail", CategoryCodeAnalysis, 0.6},
		{"帮我创建一段代码来处理日志文件的轮转", CategoryCodeGeneration, 0.6},
		{"could you tell me more about that?", CategoryAIChat, 0.6},
		{"delete everything in the home directory now", CategoryAIChat, 0.5},
	}
	for _, tt := range tests {
		res := keywordFallback(tt.input)
		if res.Layer != LayerModel || res.MatchType != MatchModelFallback {
			t.Errorf("keywordFallback(%q) layer/match = %d/%s", tt.input, res.Layer, res.MatchType)
		}
		if res.Category != tt.category || res.Confidence != tt.confidence {
			t.Errorf("keywordFallback(%q) = %s/%v, want %s/%v",
				tt.input, res.Category, res.Confidence, tt.category, tt.confidence)
		}
	}
}

func TestBuildPromptEmbedsInput(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("  整理一下项目的目录结构 ")
	want := "Request: 整理一下项目的目录结构\nCategory:"
	if len(p) < len(want) || p[len(p)-len(want):] != want {
		t.Errorf("prompt tail = %q, want suffix %q", p, want)
	}
}
