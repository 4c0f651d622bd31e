// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"time"
)

const (
	// LatestVersion reads the most recent version of a node.
	LatestVersion int64 = -1
	// NoVersion is the expected version of a node that does not exist yet.
	NoVersion int64 = -1
)

// Store is the hierarchical, versioned, watchable coordination store.
// Every write to a path creates the next version of the node at that path,
// starting from 0; older versions stay readable.
type Store interface {
	// Put writes value as the next version of the node.
	Put(ctx context.Context, path string, value []byte) (int64, error)
	// PutIfVersion writes value only if the latest version of the node is expect.
	// Use NoVersion to create the node.
	PutIfVersion(ctx context.Context, path string, value []byte, expect int64) (int64, error)
	// Get reads the given version of the node, or its latest with LatestVersion.
	Get(ctx context.Context, path string, version int64) (*Node, error)
	LatestVersion(ctx context.Context, path string) (int64, error)
	// Children returns the sorted names of the direct children of the path.
	Children(ctx context.Context, path string) ([]string, error)
	// CreationTime returns the time the first version of the node was written.
	CreationTime(ctx context.Context, path string) (time.Time, error)
	// Watch calls fn on every new version of the node until ctx is done.
	Watch(ctx context.Context, path string, fn func(Event)) error
	Close() error
}

type Node struct {
	Path      string
	Version   int64
	Value     []byte
	CreatedAt time.Time
}

type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

type Event struct {
	Type    EventType
	Path    string
	Version int64
}
