package background_test

import (
	"context"
	"testing"
	"time"

	"notecore/internal/analyzer"
	"notecore/internal/background"
	"notecore/internal/fulltext"
	"notecore/internal/kv"
	"notecore/internal/posts"
	"notecore/internal/storage"
	"notecore/internal/tags"
)

func TestRunnerProcessesIndexJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	store := kv.NewSQLiteStore(db)
	idx := fulltext.New(store, "", analyzer.New())
	postStore := posts.NewStore(db, tags.NewStore(db))

	post, err := postStore.Create(ctx, posts.CreateParams{Content: "hello world"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	runner := background.New(db.DB, idx, postStore, nil, background.Config{
		Shards:       2,
		PollInterval: 10 * time.Millisecond,
	})
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("start runner: %v", err)
	}
	defer runner.Stop()

	if err := runner.Index(ctx, post.ID, "hello world"); err != nil {
		t.Fatalf("enqueue index job: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		indexed, err := idx.IsIndexed(ctx, post.ID)
		if err != nil {
			t.Fatalf("check indexed: %v", err)
		}
		if indexed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for background index job to run")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRetentionSweepPurgesExpiredPosts(t *testing.T) {
	ctx := context.Background()

	db, err := storage.Open(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	store := kv.NewSQLiteStore(db)
	idx := fulltext.New(store, "", analyzer.New())
	postStore := posts.NewStore(db, tags.NewStore(db))

	post, err := postStore.Create(ctx, posts.CreateParams{Content: "old note"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := postStore.Delete(ctx, post.ID, false); err != nil {
		t.Fatalf("soft delete post: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	if _, err := db.NewUpdate().Table("posts").Set("deleted_at = ?", old).Where("id = ?", post.ID).Exec(ctx); err != nil {
		t.Fatalf("backdate deleted_at: %v", err)
	}

	runner := background.New(db.DB, idx, postStore, nil, background.Config{
		Shards:        1,
		RetentionDays: 30,
	})
	if err := runner.RunRetentionSweep(ctx); err != nil {
		t.Fatalf("run retention sweep: %v", err)
	}

	if _, err := postStore.FindByID(ctx, post.ID); err == nil {
		t.Fatal("expected purged post to be gone")
	}
}
