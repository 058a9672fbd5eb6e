// Package tags implements the hierarchical hashtag taxonomy: hashtag
// extraction from post HTML, tag CRUD, and subtree rename/merge.
package tags

import (
	"regexp"
	"strings"

	"github.com/uptrace/bun"
)

// Model is the bun row shape for a tag.
type Model struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Name      string `bun:"name,notnull,unique"`
	Sticky    bool   `bun:"sticky,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

// Tag is the externally visible tag shape, including its aggregated
// post count (direct + descendant, distinct, live).
type Tag struct {
	Name      string `json:"name"`
	Sticky    bool   `json:"sticky"`
	PostCount int    `json:"post_count"`
}

// hashtagPattern matches the in-line hashtag markup a post's content
// encodes hashtags as: <span class="hash-tag">#name</span>.
var hashtagPattern = regexp.MustCompile(`<span class="hash-tag">#(.+?)</span>`)

// ExtractHashtags returns the deduplicated set of hashtag names found
// in html, in first-seen order. Names are not re-validated here: they
// must already satisfy ValidateName when created through the API, but
// parsed names bypass re-validation per the component design.
func ExtractHashtags(html string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(html, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// RewriteHashtagSpan replaces every `>#old<` span body with `>#new<` in
// html, used when a tag is renamed or merged so every post referencing
// it stays consistent with the taxonomy.
func RewriteHashtagSpan(html, oldName, newName string) string {
	return strings.ReplaceAll(html, ">#"+oldName+"<", ">#"+newName+"<")
}

// ValidateName enforces the Tag identity constraints from the data
// model: non-empty, <=32 chars, no whitespace, no '#', no leading or
// trailing '/', no '//'.
func ValidateName(name string) error {
	if name == "" {
		return errInvalidName(name, "must not be empty")
	}
	if len(name) > 32 {
		return errInvalidName(name, "must be at most 32 characters")
	}
	if strings.ContainsAny(name, " \t\n\r#") {
		return errInvalidName(name, "must not contain whitespace or '#'")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return errInvalidName(name, "must not start or end with '/'")
	}
	if strings.Contains(name, "//") {
		return errInvalidName(name, "must not contain '//'")
	}
	return nil
}

// isDescendantName reports whether candidate is a descendant of name,
// i.e. candidate begins with name + "/".
func isDescendantName(name, candidate string) bool {
	return strings.HasPrefix(candidate, name+"/")
}

// movesIntoOwnSubtree reports whether renaming name to newName would
// move it into its own subtree. This intentionally matches the
// original's literal `new_name.startswith(name) and
// new_name.count('/') > name.count('/')` check rather than
// isDescendantName's slash-boundary-aware one: a bare prefix plus
// greater depth is enough, regardless of where the '/' falls.
func movesIntoOwnSubtree(name, newName string) bool {
	return strings.HasPrefix(newName, name) && strings.Count(newName, "/") > strings.Count(name, "/")
}
