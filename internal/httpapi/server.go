// Package httpapi exposes the note service over HTTP: login, tag
// management, search, and post CRUD, behind a net/http.Server with a
// CORS/auth/rate-limit middleware chain.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"notecore/internal/background"
	"notecore/internal/config"
	"notecore/internal/fulltext"
	"notecore/internal/kv"
	"notecore/internal/posts"
	"notecore/internal/tags"
)

// Server wires every dependency a handler needs and owns the
// underlying http.Server lifecycle.
type Server struct {
	cfg        config.Config
	posts      *posts.Store
	tags       *tags.Store
	index      *fulltext.Index
	background *background.Runner
	limiter    *rateLimiter
	log        *slog.Logger

	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
}

// New builds a Server. rateLimitStore backs the request-rate counters
// shared across handlers (the same kv.Store that backs the full-text
// posting lists, reused for its atomic incr primitive; counter keys
// are never expired).
func New(
	cfg config.Config,
	postStore *posts.Store,
	tagStore *tags.Store,
	index *fulltext.Index,
	bg *background.Runner,
	rateLimitStore kv.Store,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		posts:      postStore,
		tags:       tagStore,
		index:      index,
		background: bg,
		limiter:    newRateLimiter(rateLimitStore),
		log:        log,
	}
}

// Handler builds the full routed, middleware-wrapped mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /auth", s.handleAuth)
	mux.Handle("POST /login", s.limiter.wrap("login",
		s.cfg.RateLimitLoginMax, time.Duration(s.cfg.RateLimitLoginWindow)*time.Second,
		http.HandlerFunc(s.handleLogin)))

	mux.HandleFunc("GET /get-tags", s.handleGetTags)
	mux.HandleFunc("POST /stick-tag", s.handleStickTag)
	mux.Handle("POST /rename-tag", s.limiter.wrap("rename-tag", s.cfg.RateLimitRenameTagMax, time.Minute, http.HandlerFunc(s.handleRenameTag)))
	mux.Handle("POST /delete-tag", s.limiter.wrap("delete-tag", s.cfg.RateLimitDeleteTagMax, 10*time.Second, http.HandlerFunc(s.handleDeleteTag)))

	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /get-posts", s.handleGetPosts)
	mux.HandleFunc("GET /get-post", s.handleGetPost)
	mux.HandleFunc("POST /create-post", s.handleCreatePost)
	mux.HandleFunc("POST /update-post", s.handleUpdatePost)
	mux.HandleFunc("POST /delete-post", s.handleDeletePost)
	mux.HandleFunc("POST /restore-post", s.handleRestorePost)
	mux.HandleFunc("POST /clear-posts", s.handleClearPosts)

	mux.HandleFunc("GET /get-daily-post-counts", s.handleDailyPostCounts)
	mux.HandleFunc("GET /get-overall-counts", s.handleOverallCounts)
	mux.Handle("GET /_dangerously_rebuild_all_indexes",
		s.limiter.wrap("rebuild-indexes", s.cfg.RateLimitRebuildMax, time.Hour, http.HandlerFunc(s.handleRebuildIndexes)))

	cors := newCORS(s.cfg)
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = cors.wrap(handler)
	handler = s.recoverMiddleware(handler)
	handler = s.bodyLimitMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// Start listens on cfg.HTTPAddr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	listener, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("http server listening", "addr", listener.Addr().String())
	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the address the server is bound to, once Start has run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.HTTPAddr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "hello world"})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
