package tags_test

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"notecore/internal/storage"
	"notecore/internal/tags"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertPost(t *testing.T, ctx context.Context, db *bun.DB, content string) int64 {
	t.Helper()
	var id int64
	_, err := db.NewRaw(
		`INSERT INTO posts (content, shared, children_count, created_at, updated_at) VALUES (?, 0, 0, 0, 0) RETURNING id`,
		content,
	).Exec(ctx, &id)
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return id
}

func linkTag(t *testing.T, ctx context.Context, store *tags.Store, db *bun.DB, postID int64, tagName string) {
	t.Helper()
	tag, err := store.FindOrCreate(ctx, tagName)
	if err != nil {
		t.Fatalf("find_or_create %q: %v", tagName, err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO tag_post (tag_id, post_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		tag.ID, postID,
	); err != nil {
		t.Fatalf("link tag %q to post %d: %v", tagName, postID, err)
	}
}

func tagNames(t *testing.T, all []tags.Tag) []string {
	t.Helper()
	names := make([]string, len(all))
	for i, tg := range all {
		names[i] = tg.Name
	}
	return names
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestExtractHashtags(t *testing.T) {
	html := `note about <span class="hash-tag">#a/b</span> and <span class="hash-tag">#a/c</span> and again <span class="hash-tag">#a/b</span>`
	got := tags.ExtractHashtags(html)
	want := []string{"a/b", "a/c"}
	if len(got) != len(want) {
		t.Fatalf("ExtractHashtags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExtractHashtags()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRewriteHashtagSpan(t *testing.T) {
	html := `<span class="hash-tag">#a/b</span> text <span class="hash-tag">#a/b</span>`
	got := tags.RewriteHashtagSpan(html, "a/b", "x/b")
	want := `<span class="hash-tag">#x/b</span> text <span class="hash-tag">#x/b</span>`
	if got != want {
		t.Fatalf("RewriteHashtagSpan() = %q, want %q", got, want)
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		tagName string
		wantErr bool
	}{
		{"plain", "a/b", false},
		{"empty", "", true},
		{"too long", string(make([]byte, 33)), true},
		{"whitespace", "a b", true},
		{"hash", "a#b", true},
		{"leading slash", "/a", true},
		{"trailing slash", "a/", true},
		{"double slash", "a//b", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tags.ValidateName(tc.tagName)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tc.tagName, err, tc.wantErr)
			}
		})
	}
}

// TestRenameOrMergeSubtree exercises the concrete merge scenario:
// tags {a, a/b, a/c, x, x/b} with P1 -> a/b, P2 -> a/c; after
// rename_or_merge(a, x), the tree collapses into {x, x/b, x/c}, P1
// merges into x/b, P2 renames into x/c, and post content is rewritten.
func TestRenameOrMergeSubtree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := tags.NewStore(db)

	if _, err := store.FindOrCreate(ctx, "x"); err != nil {
		t.Fatalf("find_or_create x: %v", err)
	}
	if _, err := store.FindOrCreate(ctx, "x/b"); err != nil {
		t.Fatalf("find_or_create x/b: %v", err)
	}

	p1 := insertPost(t, ctx, db, `<span class="hash-tag">#a/b</span> first`)
	p2 := insertPost(t, ctx, db, `<span class="hash-tag">#a/c</span> second`)
	linkTag(t, ctx, store, db, p1, "a/b")
	linkTag(t, ctx, store, db, p2, "a/c")

	if err := store.RenameOrMerge(ctx, "a", "x"); err != nil {
		t.Fatalf("rename_or_merge(a, x): %v", err)
	}

	all, err := store.GetAllWithPostCount(ctx)
	if err != nil {
		t.Fatalf("get_all_with_post_count: %v", err)
	}
	names := tagNames(t, all)
	for _, want := range []string{"x", "x/b", "x/c"} {
		if !contains(names, want) {
			t.Fatalf("expected tag %q to survive the merge, got %v", want, names)
		}
	}
	for _, unwanted := range []string{"a", "a/b", "a/c"} {
		if contains(names, unwanted) {
			t.Fatalf("expected tag %q to be gone after the merge, got %v", unwanted, names)
		}
	}

	var p1Content, p2Content string
	if err := db.NewRaw(`SELECT content FROM posts WHERE id = ?`, p1).Scan(ctx, &p1Content); err != nil {
		t.Fatalf("load p1 content: %v", err)
	}
	if err := db.NewRaw(`SELECT content FROM posts WHERE id = ?`, p2).Scan(ctx, &p2Content); err != nil {
		t.Fatalf("load p2 content: %v", err)
	}
	if want := `<span class="hash-tag">#x/b</span> first`; p1Content != want {
		t.Fatalf("p1 content = %q, want %q", p1Content, want)
	}
	if want := `<span class="hash-tag">#x/c</span> second`; p2Content != want {
		t.Fatalf("p2 content = %q, want %q", p2Content, want)
	}
}

func TestRenameOrMergeRejectsMoveIntoOwnSubtree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := tags.NewStore(db)

	if _, err := store.FindOrCreate(ctx, "a"); err != nil {
		t.Fatalf("find_or_create a: %v", err)
	}
	if _, err := store.FindOrCreate(ctx, "a/b"); err != nil {
		t.Fatalf("find_or_create a/b: %v", err)
	}

	err := store.RenameOrMerge(ctx, "a", "a/b")
	if err == nil {
		t.Fatal("rename_or_merge(a, a/b) should reject moving a tag into its own subtree")
	}
}

// TestRenameOrMergeRejectsLiteralPrefixMatch covers the literal
// prefix+depth rule: "ab/c" is not a slash-delimited descendant of "a",
// but it starts with "a" and has more path segments, so it must still
// be rejected.
func TestRenameOrMergeRejectsLiteralPrefixMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := tags.NewStore(db)

	if _, err := store.FindOrCreate(ctx, "a"); err != nil {
		t.Fatalf("find_or_create a: %v", err)
	}

	err := store.RenameOrMerge(ctx, "a", "ab/c")
	if err == nil {
		t.Fatal("rename_or_merge(a, ab/c) should reject: starts with \"a\" and has more slashes")
	}
}

func TestDeleteAndRestoreSubtree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := tags.NewStore(db)

	p1 := insertPost(t, ctx, db, "under a")
	p2 := insertPost(t, ctx, db, "under a/b")
	linkTag(t, ctx, store, db, p1, "a")
	linkTag(t, ctx, store, db, p2, "a/b")

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	var deletedAt1, deletedAt2 *int64
	if err := db.NewRaw(`SELECT deleted_at FROM posts WHERE id = ?`, p1).Scan(ctx, &deletedAt1); err != nil {
		t.Fatalf("load p1 deleted_at: %v", err)
	}
	if err := db.NewRaw(`SELECT deleted_at FROM posts WHERE id = ?`, p2).Scan(ctx, &deletedAt2); err != nil {
		t.Fatalf("load p2 deleted_at: %v", err)
	}
	if deletedAt1 == nil || deletedAt2 == nil {
		t.Fatalf("expected both posts soft-deleted, got %v %v", deletedAt1, deletedAt2)
	}

	if err := store.Restore(ctx, "a"); err != nil {
		t.Fatalf("restore a: %v", err)
	}
	if err := db.NewRaw(`SELECT deleted_at FROM posts WHERE id = ?`, p1).Scan(ctx, &deletedAt1); err != nil {
		t.Fatalf("reload p1 deleted_at: %v", err)
	}
	if deletedAt1 != nil {
		t.Fatalf("expected p1 restored, got deleted_at = %v", deletedAt1)
	}
}
