package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"notecore/internal/config"
	"notecore/internal/errs"
	"notecore/internal/kv"
)

// bodyLimitMiddleware caps the request body at cfg.HTTPMaxBodyBytes so
// a single oversized upload can't exhaust memory decoding JSON.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.HTTPMaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTPMaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts a panicking handler into a 500 response
// instead of crashing the server.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic handling request", "path", r.URL.Path, "panic", rec)
				writeError(w, errs.New(errs.KindInternal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authMiddleware enforces the shared-secret bearer/cookie token the
// reference implementation's check_permission checks on every route
// except login and the unauthenticated probe endpoints.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := ""
		if cookie, err := r.Cookie("token"); err == nil {
			token = cookie.Value
		}
		if token == "" {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, errs.New(errs.KindUnauthorized, "missing authorization header"))
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, errs.New(errs.KindUnauthorized, "invalid authorization header"))
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}

		if token != s.cfg.SecretKey {
			writeError(w, errs.New(errs.KindUnauthorized, "invalid authorization token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/login", "/auth", "/":
		return true
	default:
		return false
	}
}

// cors implements the reference CORS middleware: preflight handling
// plus response-header injection, driven by the same config knobs.
type cors struct {
	origins          []string
	allowAllOrigins  bool
	allowedMethods   string
	allowedHeaders   string
	allowCredentials bool
	maxAge           int
}

func newCORS(cfg config.Config) *cors {
	c := &cors{
		allowedMethods:   cfg.CORSAllowedMethods,
		allowedHeaders:   cfg.CORSAllowedHeaders,
		allowCredentials: cfg.CORSAllowCredentials,
		maxAge:           cfg.CORSMaxAge,
	}
	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" {
			c.allowAllOrigins = true
			break
		}
		c.origins = append(c.origins, o)
	}
	return c
}

func (c *cors) isAllowed(origin string) bool {
	if c.allowAllOrigins {
		return true
	}
	for _, o := range c.origins {
		if o == origin {
			return true
		}
	}
	return false
}

func (c *cors) setHeaders(w http.ResponseWriter, origin string) {
	if c.allowAllOrigins {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Methods", c.allowedMethods)
	w.Header().Set("Access-Control-Allow-Headers", c.allowedHeaders)
	if c.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", c.maxAge))
}

func (c *cors) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if r.Method == http.MethodOptions {
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !c.isAllowed(origin) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			c.setHeaders(w, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" && c.isAllowed(origin) {
			c.setHeaders(w, origin)
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter enforces a fixed request budget per named route within
// a window, using the same kv.Store the full-text index uses for its
// posting lists: Incr on a window-scoped key gives an atomic counter
// without a background sweep.
type rateLimiter struct {
	store kv.Store
}

func newRateLimiter(store kv.Store) *rateLimiter {
	return &rateLimiter{store: store}
}

func (rl *rateLimiter) wrap(name string, max int, window time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		bucket := time.Now().Unix() / int64(window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", name, bucket)

		var count int64
		err := rl.store.Pipeline(ctx, func(tx kv.Tx) error {
			n, err := tx.Incr(ctx, key)
			count = n
			return err
		})
		if err != nil {
			writeError(w, errs.TransientStore(err, "rate limit check"))
			return
		}
		if count > int64(max) {
			writeError(w, errs.New(errs.KindRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
