package fulltext

import (
	"context"
	"testing"

	"notecore/internal/analyzer"
	"notecore/internal/kv"
)

func newTestIndex() *Index {
	return New(kv.NewMemStore(), "fts:", analyzer.New())
}

func TestBilingualIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Index(ctx, 1, "<p>这是一个<strong>测试</strong>文档</p>"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	_, hits, err := idx.Search(ctx, "测试", false, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 || hits[0].Score <= 0 {
		t.Fatalf("Search(测试) = %v, want one hit for id=1 with positive score", hits)
	}

	count, _, err := idx.store.Get(ctx, idx.docCountKey())
	if err != nil {
		t.Fatalf("Get doc:count: %v", err)
	}
	if count != "1" {
		t.Fatalf("doc:count = %q, want \"1\"", count)
	}
}

func TestEmptyOrPunctuationOnlyTextNoOp(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Index(ctx, 2, "!@#$%^&*()"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	indexed, err := idx.IsIndexed(ctx, 2)
	if err != nil {
		t.Fatalf("IsIndexed: %v", err)
	}
	if indexed {
		t.Fatal("IsIndexed(2) = true, want false after punctuation-only text")
	}

	count, ok, err := idx.store.Get(ctx, idx.docCountKey())
	if err != nil {
		t.Fatalf("Get doc:count: %v", err)
	}
	if ok && count != "0" {
		t.Fatalf("doc:count = %q, want unset or \"0\"", count)
	}
}

func TestReindexRemovesTokens(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Index(ctx, 1, "hello world python"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Reindex(ctx, 1, "hello advanced"); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	_, hits, err := idx.Search(ctx, "world", false, 0)
	if err != nil {
		t.Fatalf("Search(world): %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("Search(world) after reindex = %v, want empty", hits)
	}

	_, hits, err = idx.Search(ctx, "advanced", false, 0)
	if err != nil {
		t.Fatalf("Search(advanced): %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Fatalf("Search(advanced) = %v, want one hit for id=1", hits)
	}

	count, _, err := idx.store.Get(ctx, idx.docCountKey())
	if err != nil {
		t.Fatalf("Get doc:count: %v", err)
	}
	if count != "1" {
		t.Fatalf("doc:count after reindex = %q, want unchanged \"1\"", count)
	}
}

func TestRankingOrder(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	docs := map[int64]string{
		1: "python great programming python many python",
		2: "python programming concepts",
		3: "another python once",
		4: "unrelated",
	}
	for id, text := range docs {
		if err := idx.Index(ctx, id, text); err != nil {
			t.Fatalf("Index(%d): %v", id, err)
		}
	}

	_, hits, err := idx.Search(ctx, "python programming", true, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	gotIDs := make([]int64, len(hits))
	for i, h := range hits {
		gotIDs[i] = h.ID
	}

	if len(hits) != 3 {
		t.Fatalf("Search(python programming) returned %v, want exactly 3 hits (no id=4)", gotIDs)
	}
	for _, id := range gotIDs {
		if id == 4 {
			t.Fatalf("Search(python programming) unexpectedly includes unrelated doc 4: %v", gotIDs)
		}
	}

	idxOf := func(id int64) int {
		for i, h := range hits {
			if h.ID == id {
				return i
			}
		}
		return -1
	}
	if idxOf(1) > idxOf(3) || idxOf(2) > idxOf(3) {
		t.Fatalf("expected docs 1 and 2 to outrank doc 3, got order %v", gotIDs)
	}

	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("scores not sorted descending: %v", hits)
		}
	}
}

func TestRepeatedQueryTermScoresHigherThanSingle(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_ = idx.Index(ctx, 1, "python is a great language")
	_ = idx.Index(ctx, 2, "rust is a great language")

	_, single, err := idx.Search(ctx, "python", false, 0)
	if err != nil {
		t.Fatalf("Search(python): %v", err)
	}
	_, repeated, err := idx.Search(ctx, "python python", false, 0)
	if err != nil {
		t.Fatalf("Search(python python): %v", err)
	}

	if len(single) != 1 || len(repeated) != 1 {
		t.Fatalf("expected one hit each, got single=%v repeated=%v", single, repeated)
	}
	if repeated[0].Score <= single[0].Score {
		t.Fatalf("repeated query term score = %v, want > single term score %v", repeated[0].Score, single[0].Score)
	}
	if repeated[0].Score != 2*single[0].Score {
		t.Fatalf("repeated query term score = %v, want exactly double %v (duplicates must each contribute their own term)", repeated[0].Score, single[0].Score)
	}
}

func TestSearchPartialIsSupersetOfExact(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_ = idx.Index(ctx, 1, "python programming")
	_ = idx.Index(ctx, 2, "python only")
	_ = idx.Index(ctx, 3, "programming only")

	_, exact, err := idx.Search(ctx, "python programming", false, 0)
	if err != nil {
		t.Fatalf("Search(exact): %v", err)
	}
	_, partial, err := idx.Search(ctx, "python programming", true, 0)
	if err != nil {
		t.Fatalf("Search(partial): %v", err)
	}

	partialSet := make(map[int64]struct{}, len(partial))
	for _, h := range partial {
		partialSet[h.ID] = struct{}{}
	}
	for _, h := range exact {
		if _, ok := partialSet[h.ID]; !ok {
			t.Fatalf("partial result set %v does not contain exact-match id %d", partial, h.ID)
		}
	}
}

func TestDeindexRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	if err := idx.Index(ctx, 1, "hello world"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Deindex(ctx, 1); err != nil {
		t.Fatalf("Deindex: %v", err)
	}

	count, ok, err := idx.store.Get(ctx, idx.docCountKey())
	if err != nil {
		t.Fatalf("Get doc:count: %v", err)
	}
	if ok && count != "0" {
		t.Fatalf("doc:count after deindex = %q, want \"0\"", count)
	}

	remaining, err := idx.store.Keys(ctx, "fts:token:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	for _, k := range remaining {
		members, err := idx.store.SetMembers(ctx, k)
		if err != nil {
			t.Fatalf("SetMembers(%s): %v", k, err)
		}
		for _, m := range members {
			if m == "1" {
				t.Fatalf("posting set %s still contains deindexed id 1", k)
			}
		}
	}
}

func TestDoubleDeindexIsNoOp(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_ = idx.Index(ctx, 1, "hello world")
	if err := idx.Deindex(ctx, 1); err != nil {
		t.Fatalf("first Deindex: %v", err)
	}
	if err := idx.Deindex(ctx, 1); err != nil {
		t.Fatalf("second Deindex should be a no-op, got error: %v", err)
	}
}

func TestClearAllIndexes(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_ = idx.Index(ctx, 1, "hello world")
	_ = idx.Index(ctx, 2, "another doc")

	if err := idx.ClearAllIndexes(ctx); err != nil {
		t.Fatalf("ClearAllIndexes: %v", err)
	}

	remaining, err := idx.store.Keys(ctx, "fts:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("keys remain after ClearAllIndexes: %v", remaining)
	}
}
