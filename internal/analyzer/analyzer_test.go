package analyzer

import (
	"strings"
	"testing"
)

func contains(tokens []string, want string) bool {
	for _, tok := range tokens {
		if tok == want {
			return true
		}
	}
	return false
}

func TestAnalyzeBilingual(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "CJK words segmented from inside HTML markup",
			input:    "<p>这是一个<strong>测试</strong>文档</p>",
			expected: []string{"测试", "文档"},
		},
		{
			name:     "ASCII words survive as single tokens",
			input:    "hello world python",
			expected: []string{"hello", "world", "python"},
		},
		{
			name:     "ASCII punctuation folded to whitespace",
			input:    "report-2024-Q1",
			expected: []string{"report", "2024", "q1"},
		},
		{
			name:     "stop words dropped",
			input:    "this is a test of the analyzer",
			expected: []string{"test", "analyzer"},
		},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := a.Analyze(tt.input)
			for _, want := range tt.expected {
				if !contains(tokens, want) {
					t.Errorf("Analyze(%q) = %v, want to contain %q", tt.input, tokens, want)
				}
			}
			for _, stop := range []string{"this", "is", "a", "the", "of"} {
				if contains(tokens, stop) {
					t.Errorf("Analyze(%q) = %v, unexpectedly contains stop word %q", tt.input, tokens, stop)
				}
			}
		})
	}
}

func TestAnalyzeEmptyOrPunctuationOnly(t *testing.T) {
	a := New()
	tokens := a.Analyze("!@#$%^&*()")
	if len(tokens) != 0 {
		t.Fatalf("Analyze(punctuation-only) = %v, want empty", tokens)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := New()
	x := "<p>这是一个<strong>测试</strong>文档, hello WORLD!</p>"
	first := a.Analyze(x)
	rendered := strings.Join(first, " ")
	second := a.Analyze(rendered)

	if len(first) == 0 {
		t.Fatal("Analyze returned no tokens for non-empty input")
	}
	if strings.Join(first, " ") != strings.Join(second, " ") {
		t.Errorf("analyzer not idempotent under space-join render: %v != %v", first, second)
	}
}

func TestAnalyzePinyinOptIn(t *testing.T) {
	plain := New()
	withPinyin := New(WithPinyin(true))

	input := "中国人民"
	if contains(plain.Analyze(input), "zhongguorenmin") {
		t.Fatal("pinyin tokens should not appear when WithPinyin is not set")
	}
	if !contains(withPinyin.Analyze(input), "zhongguorenmin") {
		t.Fatal("pinyin tokens expected when WithPinyin(true) is set")
	}
}
