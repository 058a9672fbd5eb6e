package kv

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"notecore/internal/errs"
)

// sqliteStore implements Store over two tables on a shared bun.DB
// handle: kv_string for scalar get/set/incr/decr values, kv_set for
// set_add/set_remove/set_members/set_card members.
type sqliteStore struct {
	db *bun.DB
}

// NewSQLiteStore builds a Store backed by db. The caller is
// responsible for having run the kv_string/kv_set migrations.
func NewSQLiteStore(db *bun.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	return getString(ctx, s.db, key)
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	return setString(ctx, s.db, key, value)
}

func (s *sqliteStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.Pipeline(ctx, func(tx Tx) error {
		var err error
		n, err = tx.Incr(ctx, key)
		return err
	})
	return n, err
}

func (s *sqliteStore) Decr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.Pipeline(ctx, func(tx Tx) error {
		var err error
		n, err = tx.Decr(ctx, key)
		return err
	})
	return n, err
}

func (s *sqliteStore) SetAdd(ctx context.Context, key, member string) error {
	return setAdd(ctx, s.db, key, member)
}

func (s *sqliteStore) SetRemove(ctx context.Context, key, member string) error {
	return setRemove(ctx, s.db, key, member)
}

func (s *sqliteStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return setMembers(ctx, s.db, key)
}

func (s *sqliteStore) SetCard(ctx context.Context, key string) (int64, error) {
	return setCard(ctx, s.db, key)
}

func (s *sqliteStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return keys(ctx, s.db, pattern)
}

func (s *sqliteStore) Delete(ctx context.Context, keys ...string) error {
	return deleteKeys(ctx, s.db, keys...)
}

// Pipeline runs fn inside one bun transaction: a single atomic unit
// standing in for a Redis MULTI/EXEC round trip.
func (s *sqliteStore) Pipeline(ctx context.Context, fn func(Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&sqliteTx{db: &tx})
	})
}

// execer is satisfied by both *bun.DB and bun.Tx, letting the
// free functions below run identically inside or outside a
// transaction.
type execer interface {
	bun.IDB
}

// sqliteTx adapts a bun.Tx to Tx.
type sqliteTx struct {
	db execer
}

func (t *sqliteTx) Get(ctx context.Context, key string) (string, bool, error) {
	return getString(ctx, t.db, key)
}

func (t *sqliteTx) Set(ctx context.Context, key, value string) error {
	return setString(ctx, t.db, key, value)
}

func (t *sqliteTx) Incr(ctx context.Context, key string) (int64, error) {
	return incrBy(ctx, t.db, key, 1)
}

func (t *sqliteTx) Decr(ctx context.Context, key string) (int64, error) {
	return incrBy(ctx, t.db, key, -1)
}

func (t *sqliteTx) SetAdd(ctx context.Context, key, member string) error {
	return setAdd(ctx, t.db, key, member)
}

func (t *sqliteTx) SetRemove(ctx context.Context, key, member string) error {
	return setRemove(ctx, t.db, key, member)
}

func (t *sqliteTx) SetMembers(ctx context.Context, key string) ([]string, error) {
	return setMembers(ctx, t.db, key)
}

func (t *sqliteTx) SetCard(ctx context.Context, key string) (int64, error) {
	return setCard(ctx, t.db, key)
}

func (t *sqliteTx) Keys(ctx context.Context, pattern string) ([]string, error) {
	return keys(ctx, t.db, pattern)
}

func (t *sqliteTx) Delete(ctx context.Context, keys ...string) error {
	return deleteKeys(ctx, t.db, keys...)
}

func getString(ctx context.Context, db execer, key string) (string, bool, error) {
	var value string
	err := db.NewSelect().
		ColumnExpr("value").
		Table("kv_string").
		Where("key = ?", key).
		Scan(ctx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.TransientStore(err, "kv get")
	}
	return value, true, nil
}

func setString(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv_string (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errs.TransientStore(err, "kv set")
	}
	return nil
}

func incrBy(ctx context.Context, db execer, key string, delta int64) (int64, error) {
	raw, ok, err := getString(ctx, db, key)
	if err != nil {
		return 0, err
	}
	var cur int64
	if ok {
		cur, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errs.InvariantViolation("kv key %q is not an integer counter", key)
		}
	}
	next := cur + delta
	if err := setString(ctx, db, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

func setAdd(ctx context.Context, db execer, key, member string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv_set (key, member) VALUES (?, ?)
		ON CONFLICT(key, member) DO NOTHING
	`, key, member)
	if err != nil {
		return errs.TransientStore(err, "kv set_add")
	}
	return nil
}

func setRemove(ctx context.Context, db execer, key, member string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM kv_set WHERE key = ? AND member = ?`, key, member)
	if err != nil {
		return errs.TransientStore(err, "kv set_remove")
	}
	return nil
}

func setMembers(ctx context.Context, db execer, key string) ([]string, error) {
	var members []string
	err := db.NewSelect().
		ColumnExpr("member").
		Table("kv_set").
		Where("key = ?", key).
		Order("member").
		Scan(ctx, &members)
	if err != nil {
		return nil, errs.TransientStore(err, "kv set_members")
	}
	return members, nil
}

func setCard(ctx context.Context, db execer, key string) (int64, error) {
	n, err := db.NewSelect().Table("kv_set").Where("key = ?", key).Count(ctx)
	if err != nil {
		return 0, errs.TransientStore(err, "kv set_card")
	}
	return int64(n), nil
}

func deleteKeys(ctx context.Context, db execer, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := db.NewDelete().Table("kv_string").Where("key IN (?)", bun.In(keys)).Exec(ctx); err != nil {
		return errs.TransientStore(err, "kv delete")
	}
	if _, err := db.NewDelete().Table("kv_set").Where("key IN (?)", bun.In(keys)).Exec(ctx); err != nil {
		return errs.TransientStore(err, "kv delete")
	}
	return nil
}

// keys resolves a Redis-style glob pattern (only '*' is supported,
// which is all the component design requires: "{prefix}doc:*" and
// "{prefix}token:*") against both backing tables.
func keys(ctx context.Context, db execer, pattern string) ([]string, error) {
	like := globToLike(pattern)

	seen := make(map[string]struct{})
	var out []string

	var stringKeys []string
	if err := db.NewSelect().ColumnExpr("key").Table("kv_string").Where("key LIKE ? ESCAPE '\\'", like).Scan(ctx, &stringKeys); err != nil {
		return nil, errs.TransientStore(err, "kv keys")
	}
	var setKeys []string
	if err := db.NewSelect().ColumnExpr("DISTINCT key").Table("kv_set").Where("key LIKE ? ESCAPE '\\'", like).Scan(ctx, &setKeys); err != nil {
		return nil, errs.TransientStore(err, "kv keys")
	}

	for _, k := range append(stringKeys, setKeys...) {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

func globToLike(pattern string) string {
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '%', '_', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '*':
			sb.WriteByte('%')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
