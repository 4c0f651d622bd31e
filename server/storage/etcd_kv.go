// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"strings"

	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/etcdutil"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/clientv3util"
	"go.uber.org/zap"
)

const defaultScanBatchSize = 512

type etcdKV struct {
	client   *clientv3.Client
	rootPath string
}

// NewEtcdKV creates a KV keeping all its keys under rootPath of the etcd cluster.
func NewEtcdKV(client *clientv3.Client, rootPath string) KV {
	return &etcdKV{
		client:   client,
		rootPath: strings.TrimSuffix(rootPath, pathDelimiter),
	}
}

func (kv *etcdKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := etcdutil.Get(ctx, kv.client, kv.rootPath+key)
	if err != nil {
		if coderr.Is(err, coderr.NotFound) {
			return nil, false, nil
		}
		return nil, false, ErrCoordinationUnavailable.WithCause(err)
	}
	return value, true, nil
}

func (kv *etcdKV) LoadPrefix(ctx context.Context, prefix string) ([]string, [][]byte, error) {
	keys, values, err := etcdutil.ScanPrefix(ctx, kv.client, kv.rootPath+prefix, defaultScanBatchSize)
	if err != nil {
		return nil, nil, ErrCoordinationUnavailable.WithCause(err)
	}
	for i := range keys {
		keys[i] = strings.TrimPrefix(keys[i], kv.rootPath)
	}
	return keys, values, nil
}

func (kv *etcdKV) Commit(ctx context.Context, cmps []Cmp, puts []KeyValue) (bool, error) {
	conds := make([]clientv3.Cmp, 0, len(cmps))
	for _, c := range cmps {
		key := kv.rootPath + c.Key
		if c.Missing {
			conds = append(conds, clientv3util.KeyMissing(key))
			continue
		}
		conds = append(conds, clientv3.Compare(clientv3.Value(key), "=", string(c.Value)))
	}
	ops := make([]clientv3.Op, 0, len(puts))
	for _, p := range puts {
		ops = append(ops, clientv3.OpPut(kv.rootPath+p.Key, string(p.Value)))
	}

	resp, err := etcdutil.NewSlowLogTxn(ctx, kv.client, etcdutil.DefaultRequestTimeout).
		If(conds...).
		Then(ops...).
		Commit()
	if err != nil {
		log.Error("commit to etcd failed", zap.Int("cmps", len(cmps)), zap.Int("puts", len(puts)), zap.Error(err))
		return false, ErrCoordinationUnavailable.WithCause(err)
	}
	return resp.Succeeded, nil
}

func (kv *etcdKV) Watch(ctx context.Context, key string, fn func(KeyValue, bool)) error {
	fullKey := kv.rootPath + key
	watchCh := kv.client.Watch(clientv3.WithRequireLeader(ctx), fullKey)
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-watchCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrCoordinationUnavailable.WithCausef("watch channel closed, key:%s", key)
			}
			if err := resp.Err(); err != nil {
				return ErrCoordinationUnavailable.WithCause(err)
			}
			for _, ev := range resp.Events {
				fn(KeyValue{Key: key, Value: ev.Kv.Value}, ev.Type == mvccpb.DELETE)
			}
		}
	}
}

// Close leaves the client to its owner.
func (kv *etcdKV) Close() error {
	return nil
}
