package kv

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"notecore/internal/errs"
)

// memStore is an in-process Store used by component tests that don't
// need a real SQLite file; it honors the same atomicity contract as
// sqliteStore (Pipeline holds the lock for its whole duration).
type memStore struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
}

// NewMemStore builds an in-memory Store for tests.
func NewMemStore() Store {
	return &memStore{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (m *memStore) Pipeline(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn((*memTx)(m))
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	var ok bool
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		v, ok, err = tx.Get(ctx, key)
		return err
	})
	return v, ok, err
}

func (m *memStore) Set(ctx context.Context, key, value string) error {
	return m.Pipeline(ctx, func(tx Tx) error { return tx.Set(ctx, key, value) })
}

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		n, err = tx.Incr(ctx, key)
		return err
	})
	return n, err
}

func (m *memStore) Decr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		n, err = tx.Decr(ctx, key)
		return err
	})
	return n, err
}

func (m *memStore) SetAdd(ctx context.Context, key, member string) error {
	return m.Pipeline(ctx, func(tx Tx) error { return tx.SetAdd(ctx, key, member) })
}

func (m *memStore) SetRemove(ctx context.Context, key, member string) error {
	return m.Pipeline(ctx, func(tx Tx) error { return tx.SetRemove(ctx, key, member) })
}

func (m *memStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		out, err = tx.SetMembers(ctx, key)
		return err
	})
	return out, err
}

func (m *memStore) SetCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		n, err = tx.SetCard(ctx, key)
		return err
	})
	return n, err
}

func (m *memStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	err := m.Pipeline(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Keys(ctx, pattern)
		return err
	})
	return out, err
}

func (m *memStore) Delete(ctx context.Context, keys ...string) error {
	return m.Pipeline(ctx, func(tx Tx) error { return tx.Delete(ctx, keys...) })
}

// memTx reuses memStore's fields directly; Pipeline already holds the
// mutex for its whole duration so no separate locking is needed here.
type memTx memStore

func (t *memTx) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := t.strings[key]
	return v, ok, nil
}

func (t *memTx) Set(_ context.Context, key, value string) error {
	t.strings[key] = value
	return nil
}

func (t *memTx) Incr(ctx context.Context, key string) (int64, error) { return t.incrBy(key, 1) }
func (t *memTx) Decr(ctx context.Context, key string) (int64, error) { return t.incrBy(key, -1) }

func (t *memTx) incrBy(key string, delta int64) (int64, error) {
	var cur int64
	if raw, ok := t.strings[key]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errs.InvariantViolation("kv key %q is not an integer counter", key)
		}
		cur = n
	}
	next := cur + delta
	t.strings[key] = strconv.FormatInt(next, 10)
	return next, nil
}

func (t *memTx) SetAdd(_ context.Context, key, member string) error {
	set, ok := t.sets[key]
	if !ok {
		set = make(map[string]struct{})
		t.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (t *memTx) SetRemove(_ context.Context, key, member string) error {
	if set, ok := t.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (t *memTx) SetMembers(_ context.Context, key string) ([]string, error) {
	set := t.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (t *memTx) SetCard(_ context.Context, key string) (int64, error) {
	return int64(len(t.sets[key])), nil
}

func (t *memTx) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix, hasStar := strings.CutSuffix(pattern, "*")
	matches := func(key string) bool {
		if hasStar {
			return strings.HasPrefix(key, prefix)
		}
		return key == pattern
	}

	seen := make(map[string]struct{})
	var out []string
	for k := range t.strings {
		if matches(k) {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	for k := range t.sets {
		if matches(k) {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func (t *memTx) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(t.strings, k)
		delete(t.sets, k)
	}
	return nil
}
