// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Storage is the interface for the backend storage of the ring meta.
type Storage interface {
	MetaStorage
	Close() error
}

// NewStorage creates a storage on the given versioned store.
func NewStorage(store Store) Storage {
	return newMetaStorageImpl(store)
}

// NewStorageWithEtcdBackend creates a new storage with etcd backend.
func NewStorageWithEtcdBackend(client *clientv3.Client, rootPath string, opts Options) Storage {
	return NewStorage(NewStore(NewEtcdKV(client, rootPath), opts))
}

// NewStorageWithBoltBackend creates a new storage on a local bbolt file.
func NewStorageWithBoltBackend(path string, opts Options) (Storage, error) {
	kv, err := NewBoltKV(path)
	if err != nil {
		return nil, err
	}
	return NewStorage(NewStore(kv, opts)), nil
}

// NewStorageWithMemoryBackend creates a new storage living in process memory.
func NewStorageWithMemoryBackend(opts Options) Storage {
	return NewStorage(NewStore(NewMemKV(), opts))
}
