// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import "context"

// KV is the flat, ordered key/value backend the versioned node store is built on.
type KV interface {
	// Load returns the value of the key and whether it exists.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// LoadPrefix returns all the keys and values under the prefix in key order.
	LoadPrefix(ctx context.Context, prefix string) (keys []string, values [][]byte, err error)
	// Commit applies all the puts atomically iff every comparison holds.
	Commit(ctx context.Context, cmps []Cmp, puts []KeyValue) (bool, error)
	// Watch calls fn with every later value of the key until ctx is done.
	Watch(ctx context.Context, key string, fn func(kv KeyValue, deleted bool)) error
	Close() error
}

// Cmp is a guard of a Commit: the key must be missing, or hold Value.
type Cmp struct {
	Key     string
	Value   []byte
	Missing bool
}

type KeyValue struct {
	Key   string
	Value []byte
}
