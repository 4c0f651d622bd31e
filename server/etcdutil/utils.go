// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package etcdutil

import (
	"context"

	"github.com/ringmeta/ringmeta/pkg/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Get returns the value of the key, ErrEtcdKVGetNotFound if it is missing.
func Get(ctx context.Context, client *clientv3.Client, key string) ([]byte, error) {
	resp, err := client.Get(ctx, key)
	if err != nil {
		return nil, ErrEtcdKVGet.WithCause(err)
	}
	if n := len(resp.Kvs); n == 0 {
		return nil, ErrEtcdKVGetNotFound
	} else if n > 1 {
		return nil, ErrEtcdKVGetResponse.WithCausef("%v", resp.Kvs)
	}

	return resp.Kvs[0].Value, nil
}

// ScanPrefix returns all the keys and values under the prefix in key order,
// fetched in batches of batchSize.
func ScanPrefix(ctx context.Context, client *clientv3.Client, prefix string, batchSize int) ([]string, [][]byte, error) {
	endKey := clientv3.GetPrefixRangeEnd(prefix)
	startKey := prefix
	keys := make([]string, 0)
	values := make([][]byte, 0)

	for {
		resp, err := client.Get(ctx, startKey, clientv3.WithRange(endKey), clientv3.WithLimit(int64(batchSize)))
		if err != nil {
			return nil, nil, ErrEtcdKVGet.WithCause(err)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		for _, item := range resp.Kvs {
			keys = append(keys, string(item.Key))
			values = append(values, item.Value)
		}

		if !resp.More || len(resp.Kvs) == 0 {
			return keys, values, nil
		}

		// Continue right after the last returned key.
		last := resp.Kvs[len(resp.Kvs)-1].Key
		startKey = string(append(append([]byte{}, last...), 0))
		log.Debug("continue prefix scan", zap.String("prefix", prefix), zap.String("nextKey", startKey))
	}
}
