package posts_test

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"notecore/internal/posts"
	"notecore/internal/storage"
	"notecore/internal/tags"
)

func newTestStores(t *testing.T) (*bun.DB, *posts.Store) {
	t.Helper()
	db, err := storage.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tagStore := tags.NewStore(db)
	return db, posts.NewStore(db, tagStore)
}

func TestCreatePostLinksHashtags(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStores(t)

	m, err := store.Create(ctx, posts.CreateParams{
		Content: `remember <span class="hash-tag">#work/today</span>`,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	got, err := store.FindByIDs(ctx, []int64{m.ID})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if len(got[0].Tags) != 1 || got[0].Tags[0] != "work/today" {
		t.Fatalf("expected tags [work/today], got %v", got[0].Tags)
	}
}

func TestChildrenCountInvariant(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStores(t)

	parent, err := store.Create(ctx, posts.CreateParams{Content: "parent note"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	child, err := store.Create(ctx, posts.CreateParams{Content: "child note", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	reloaded, err := store.FindByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("reload parent: %v", err)
	}
	if reloaded.ChildrenCount != 1 {
		t.Fatalf("children_count = %d, want 1", reloaded.ChildrenCount)
	}

	if err := store.Delete(ctx, child.ID, false); err != nil {
		t.Fatalf("soft delete child: %v", err)
	}
	reloaded, err = store.FindByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("reload parent after delete: %v", err)
	}
	if reloaded.ChildrenCount != 0 {
		t.Fatalf("children_count after delete = %d, want 0", reloaded.ChildrenCount)
	}

	if err := store.Restore(ctx, child.ID); err != nil {
		t.Fatalf("restore child: %v", err)
	}
	reloaded, err = store.FindByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("reload parent after restore: %v", err)
	}
	if reloaded.ChildrenCount != 1 {
		t.Fatalf("children_count after restore = %d, want 1", reloaded.ChildrenCount)
	}
}

func TestFilterPostsByTagIncludesDescendants(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStores(t)

	if _, err := store.Create(ctx, posts.CreateParams{Content: `<span class="hash-tag">#a/b</span>`}); err != nil {
		t.Fatalf("create post under a/b: %v", err)
	}
	if _, err := store.Create(ctx, posts.CreateParams{Content: `<span class="hash-tag">#x</span>`}); err != nil {
		t.Fatalf("create post under x: %v", err)
	}

	got, err := store.FilterPosts(ctx, posts.FilterParams{Tag: "a", PerPage: 20})
	if err != nil {
		t.Fatalf("filter_posts by tag a: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 post under tag 'a' subtree, got %d", len(got))
	}
}

func TestDailyCountsBucketing(t *testing.T) {
	ctx := context.Background()
	db, store := newTestStores(t)

	day0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 := day0.AddDate(0, 0, 2)

	insertAt := func(ts time.Time) {
		ms := ts.UnixMilli()
		if _, err := db.ExecContext(ctx,
			`INSERT INTO posts (content, shared, children_count, created_at, updated_at) VALUES (?, 0, 0, ?, ?)`,
			"note", ms, ms,
		); err != nil {
			t.Fatalf("insert post at %v: %v", ts, err)
		}
	}

	insertAt(day0)
	insertAt(day0.Add(time.Hour))
	insertAt(day2)

	counts, err := store.DailyCounts(ctx, day0.UnixMilli(), day2.Add(23*time.Hour).UnixMilli(), 0)
	if err != nil {
		t.Fatalf("get_daily_counts: %v", err)
	}

	want := []int{2, 0, 1}
	if len(counts) != len(want) {
		t.Fatalf("daily counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("daily counts[%d] = %d, want %d", i, counts[i], want[i])
		}
	}
}

func TestClearAllRemovesOnlyDeleted(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStores(t)

	live, err := store.Create(ctx, posts.CreateParams{Content: "keep me"})
	if err != nil {
		t.Fatalf("create live: %v", err)
	}
	gone, err := store.Create(ctx, posts.CreateParams{Content: "delete me"})
	if err != nil {
		t.Fatalf("create gone: %v", err)
	}
	if err := store.Delete(ctx, gone.ID, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	ids, err := store.ClearAll(ctx)
	if err != nil {
		t.Fatalf("clear_all: %v", err)
	}
	if len(ids) != 1 || ids[0] != gone.ID {
		t.Fatalf("clear_all ids = %v, want [%d]", ids, gone.ID)
	}

	if _, err := store.FindByID(ctx, live.ID); err != nil {
		t.Fatalf("live post should survive clear_all: %v", err)
	}
}
