// Package analyzer turns raw HTML post content into the normalized
// token stream the full-text index is built from: HTML strip,
// punctuation fold, bilingual segmentation, case fold, stop-word
// removal, in that order.
package analyzer

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/mozillazg/go-pinyin"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// cjkPunctuation is the fixed CJK punctuation set folded to whitespace
// alongside ASCII punctuation.
const cjkPunctuation = "，、；：。？！''\"\"（）「」【】《》……"

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "for": {}, "from": {}, "have": {}, "if": {},
	"in": {}, "is": {}, "it": {}, "may": {}, "not": {}, "of": {}, "on": {},
	"or": {}, "tbd": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"us": {}, "we": {}, "when": {}, "will": {}, "with": {}, "yet": {},
	"you": {}, "your": {},
	"的": {}, "了": {}, "和": {}, "着": {}, "与": {},
}

// punctuationSet is built once from ASCII string.punctuation plus the
// CJK set, folded to a rune set for O(1) membership checks.
var punctuationSet = buildPunctuationSet()

func buildPunctuationSet() map[rune]struct{} {
	const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	set := make(map[rune]struct{}, len(asciiPunct)+len(cjkPunctuation))
	for _, r := range asciiPunct {
		set[r] = struct{}{}
	}
	for _, r := range cjkPunctuation {
		set[r] = struct{}{}
	}
	return set
}

var (
	segOnce sync.Once
	seg     gse.Segmenter
	segMu   sync.Mutex

	pinyinArgs pinyin.Args
)

func initSegmenter() {
	segOnce.Do(func() {
		seg.AlphaNum = true
		seg.SkipLog = true
		_ = seg.LoadDict()

		pinyinArgs = pinyin.NewArgs()
		pinyinArgs.Style = pinyin.Normal
		pinyinArgs.Fallback = func(r rune, a pinyin.Args) []string {
			return []string{string(r)}
		}
	})
}

// Analyzer converts raw post HTML into an ordered token stream.
// Duplicates are preserved since callers need frequencies.
type Analyzer struct {
	withPinyin bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPinyin enables emitting pinyin subtokens for Chinese runs, so a
// query typed in Latin letters can match CJK content. Off by default.
// With it enabled the analyzer is not idempotent under space-join
// rendering: re-analyzing the output keeps the pinyin tokens already
// emitted and appends a fresh pinyin pair for the Chinese tokens, so
// every pinyin token appears twice.
func WithPinyin(enabled bool) Option {
	return func(a *Analyzer) { a.withPinyin = enabled }
}

// New builds an Analyzer.
func New(opts ...Option) *Analyzer {
	initSegmenter()
	a := &Analyzer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the full pipeline and returns the ordered token stream.
func (a *Analyzer) Analyze(text string) []string {
	stripped := stripHTML(text)
	folded := foldPunctuation(stripped)

	segMu.Lock()
	raw := seg.CutSearch(folded, true)
	segMu.Unlock()

	tokens := make([]string, 0, len(raw))
	var chineseRuns strings.Builder

	for _, tok := range raw {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if !hasAlphaNumeric(tok) {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)

		if a.withPinyin && allChinese(tok) {
			chineseRuns.WriteString(tok)
		}
	}

	if a.withPinyin && chineseRuns.Len() > 0 {
		tokens = append(tokens, pinyinTokens(chineseRuns.String())...)
	}

	return tokens
}

func stripHTML(text string) string {
	return htmlTagPattern.ReplaceAllString(text, " ")
}

func foldPunctuation(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if _, punct := punctuationSet[r]; punct {
			sb.WriteRune(' ')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func hasAlphaNumeric(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func allChinese(token string) bool {
	found := false
	for _, r := range token {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
		found = true
	}
	return found
}

func pinyinTokens(chineseText string) []string {
	if chineseText == "" {
		return nil
	}
	pys := pinyin.LazyPinyin(chineseText, pinyinArgs)
	if len(pys) == 0 {
		return nil
	}

	var out []string
	if full := strings.Join(pys, ""); full != "" {
		out = append(out, full)
	}
	var abbrev strings.Builder
	for _, py := range pys {
		if len(py) > 0 {
			abbrev.WriteByte(py[0])
		}
	}
	if abbrev.Len() > 0 {
		out = append(out, abbrev.String())
	}
	return out
}
