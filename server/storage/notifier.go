// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"sync"

	"github.com/ringmeta/ringmeta/pkg/log"
	"go.uber.org/zap"
)

const watchBufferSize = 64

// notifier fans committed puts out to the in-process watchers of a KV.
// A watcher that falls behind loses events; the store stays the source of truth.
type notifier struct {
	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]chan KeyValue
}

func newNotifier() *notifier {
	return &notifier{watchers: make(map[string]map[int]chan KeyValue)}
}

func (n *notifier) notify(puts []KeyValue) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range puts {
		for _, ch := range n.watchers[p.Key] {
			select {
			case ch <- p:
			default:
				log.Warn("drop watch event of slow watcher", zap.String("key", p.Key))
			}
		}
	}
}

func (n *notifier) watch(ctx context.Context, key string, fn func(KeyValue, bool)) error {
	ch := make(chan KeyValue, watchBufferSize)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.watchers[key] == nil {
		n.watchers[key] = make(map[int]chan KeyValue)
	}
	n.watchers[key][id] = ch
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.watchers[key], id)
		if len(n.watchers[key]) == 0 {
			delete(n.watchers, key)
		}
		n.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case kv := <-ch:
			fn(kv, false)
		}
	}
}
