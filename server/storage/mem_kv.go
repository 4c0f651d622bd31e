// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

// memKV keeps the keys in an ordered map in memory.
type memKV struct {
	mu       sync.RWMutex
	tree     *treemap.Map
	notifier *notifier
}

// NewMemKV creates a KV living in process memory.
func NewMemKV() KV {
	return &memKV{
		tree:     treemap.NewWithStringComparator(),
		notifier: newNotifier(),
	}
}

func (kv *memKV) Load(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	v, ok := kv.tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v.([]byte)), true, nil
}

func (kv *memKV) LoadPrefix(_ context.Context, prefix string) ([]string, [][]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	keys := make([]string, 0)
	values := make([][]byte, 0)
	it := kv.tree.Iterator()
	for it.Next() {
		key := it.Key().(string)
		if key < prefix {
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			break
		}
		keys = append(keys, key)
		values = append(values, cloneBytes(it.Value().([]byte)))
	}
	return keys, values, nil
}

func (kv *memKV) Commit(_ context.Context, cmps []Cmp, puts []KeyValue) (bool, error) {
	kv.mu.Lock()
	for _, c := range cmps {
		v, ok := kv.tree.Get(c.Key)
		if c.Missing {
			if ok {
				kv.mu.Unlock()
				return false, nil
			}
			continue
		}
		if !ok || string(v.([]byte)) != string(c.Value) {
			kv.mu.Unlock()
			return false, nil
		}
	}
	for _, p := range puts {
		kv.tree.Put(p.Key, cloneBytes(p.Value))
	}
	kv.mu.Unlock()

	kv.notifier.notify(puts)
	return true, nil
}

func (kv *memKV) Watch(ctx context.Context, key string, fn func(KeyValue, bool)) error {
	return kv.notifier.watch(ctx, key, fn)
}

func (kv *memKV) Close() error {
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append(make([]byte, 0, len(b)), b...)
}
