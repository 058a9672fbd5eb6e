package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notecore/internal/analyzer"
	"notecore/internal/background"
	"notecore/internal/config"
	"notecore/internal/fulltext"
	"notecore/internal/httpapi"
	"notecore/internal/kv"
	"notecore/internal/posts"
	"notecore/internal/storage"
	"notecore/internal/tags"
)

func newTestServer(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	kvStore := kv.NewSQLiteStore(db)
	idx := fulltext.New(kvStore, "", analyzer.New())
	tagStore := tags.NewStore(db)
	postStore := posts.NewStore(db, tagStore)
	bg := background.New(db.DB, idx, postStore, nil, background.Config{Shards: 1})

	cfg := config.Default()
	cfg.SecretKey = "test-secret"
	cfg.RateLimitLoginMax = 1000
	cfg.RateLimitRenameTagMax = 1000
	cfg.RateLimitDeleteTagMax = 1000
	cfg.RateLimitRebuildMax = 1000

	srv := httpapi.New(cfg, postStore, tagStore, idx, bg, kvStore, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func authedRequest(t *testing.T, method, url, token string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHandleIndexIsPublic(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/get-tags")
	if err != nil {
		t.Fatalf("GET /get-tags: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateAndFetchPost(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := ts.Client()

	createReq := authedRequest(t, http.MethodPost, ts.URL+"/create-post", cfg.SecretKey, map[string]any{
		"content": `hello <span class="hash-tag">#golang</span> world`,
	})
	resp, err := client.Do(createReq)
	if err != nil {
		t.Fatalf("create-post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create-post status = %d, want 200", resp.StatusCode)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected a non-zero id")
	}

	getReq := authedRequest(t, http.MethodGet, ts.URL+"/get-post?id="+itoa(created.ID), cfg.SecretKey, nil)
	resp2, err := client.Do(getReq)
	if err != nil {
		t.Fatalf("get-post: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get-post status = %d, want 200", resp2.StatusCode)
	}

	var post posts.Post
	if err := json.NewDecoder(resp2.Body).Decode(&post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if len(post.Tags) != 1 || post.Tags[0] != "golang" {
		t.Fatalf("tags = %v, want [golang]", post.Tags)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts, _ := newTestServer(t)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]string{"password": "nope"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := http.Post(ts.URL+"/login", "application/json", &buf)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		t.Fatalf("expected login with wrong password to fail")
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
