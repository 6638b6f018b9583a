package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// normalize trims the input and folds full-width forms ("／ｒｅａｄ", "？")
// to their ASCII counterparts so both locales hit the same tables.
func normalize(input string) string {
	return strings.TrimSpace(width.Fold.String(input))
}

// fold lowercases s for table comparisons. A Caser is stateful, so one is
// built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// isBlank reports whether s holds no letter or digit.
func isBlank(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// containsKeyword reports whether kw occurs in s. ASCII keywords must sit on
// word boundaries so "pip" does not match "pipeline"; CJK keywords match as
// plain substrings because the script has no word separators.
func containsKeyword(s, kw string) bool {
	if !isASCII(kw) {
		return strings.Contains(s, kw)
	}
	for from := 0; from <= len(s)-len(kw); {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if boundaryBefore(s, start) && (strings.HasSuffix(kw, " ") || boundaryAfter(s, end)) {
			return true
		}
		from = start + 1
	}
	return false
}

// hasKeywordPrefix reports whether s starts with kw followed by a boundary.
func hasKeywordPrefix(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if !isASCII(kw) || strings.HasSuffix(kw, " ") {
		return true
	}
	return boundaryAfter(s, len(kw))
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
