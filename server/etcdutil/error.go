// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package etcdutil

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrEtcdKVGet         = coderr.NewCodeError(coderr.Unavailable, "etcd KV get failed")
	ErrEtcdKVGetNotFound = coderr.NewCodeError(coderr.NotFound, "etcd KV get value not found")
	ErrEtcdKVGetResponse = coderr.NewCodeError(coderr.Internal, "etcd invalid get value response must only one")
)
