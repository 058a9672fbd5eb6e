// Package kv defines the Redis-compatible key-value capability surface
// IndexStore needs (get/set/incr/decr/set_add/set_remove/set_members/
// set_card/keys/delete/pipeline) and a SQLite-backed implementation of
// it, so the full-text index can run against the same process-wide
// storage handle as the relational store without requiring a separate
// Redis deployment.
package kv

import "context"

// Tx is the capability surface available inside a Pipeline callback.
// Every call against a Tx participates in the same atomic unit; either
// all of them are visible after Pipeline returns or none are.
type Tx interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetCard(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Store is the IndexStore capability contract from the component
// design: a thin adapter over a key-value store supporting string
// get/set, atomic counters, sets, key enumeration, and pipelined
// batches of the above executed atomically from the caller's view.
type Store interface {
	Tx
	// Pipeline runs fn against a Tx bound to a single atomic unit of
	// work (one SQLite transaction standing in for a Redis MULTI/EXEC
	// round trip). If fn returns an error the whole batch is rolled
	// back.
	Pipeline(ctx context.Context, fn func(Tx) error) error
}
