package httpapi

import (
	"regexp"
	"sort"
	"strings"
)

var htmlTagOrWordRe = regexp.MustCompile(`<[^>]*>`)

// markTokensInHTML wraps every occurrence of tokens in html with
// <mark> tags, skipping matches inside markup. English tokens are
// matched on word boundaries; CJK tokens (which have no notion of a
// word boundary) are matched literally. Longer tokens are tried first
// so that an overlapping shorter token doesn't shadow a longer match.
func markTokensInHTML(tokens []string, html string) string {
	if len(tokens) == 0 {
		return html
	}

	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	var parts []string
	for _, tok := range sorted {
		if tok == "" {
			continue
		}
		escaped := regexp.QuoteMeta(tok)
		if containsCJK(tok) {
			parts = append(parts, escaped)
		} else {
			parts = append(parts, `\b`+escaped+`\b`)
		}
	}
	if len(parts) == 0 {
		return html
	}

	pattern := regexp.MustCompile(`(?:<[^>]*>)|(` + strings.Join(parts, "|") + `)`)
	return pattern.ReplaceAllStringFunc(html, func(match string) string {
		if htmlTagOrWordRe.MatchString(match) {
			return match
		}
		return "<mark>" + match + "</mark>"
	})
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}
