// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/ringmeta/ringmeta/pkg/log"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var metaBucket = []byte("ringmeta")

const defaultBoltOpenTimeout = time.Second

// boltKV keeps the keys in a single bucket of a local bbolt file, for
// single-node deployments without an etcd cluster.
type boltKV struct {
	db       *bbolt.DB
	notifier *notifier
}

// NewBoltKV opens (or creates) the bbolt file at path.
func NewBoltKV(path string) (KV, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: defaultBoltOpenTimeout})
	if err != nil {
		return nil, ErrCoordinationUnavailable.WithCausef("open bolt file:%s, err:%v", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, ErrCoordinationUnavailable.WithCausef("create bucket, err:%v", err)
	}

	log.Info("open bolt kv", zap.String("path", path))
	return &boltKV{db: db, notifier: newNotifier()}, nil
}

func (kv *boltKV) Load(_ context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := kv.db.View(func(tx *bbolt.Tx) error {
		k, v := tx.Bucket(metaBucket).Cursor().Seek([]byte(key))
		if k != nil && bytes.Equal(k, []byte(key)) {
			value, found = cloneBytes(v), true
		}
		return nil
	})
	if err != nil {
		return nil, false, ErrCoordinationUnavailable.WithCause(err)
	}
	return value, found, nil
}

func (kv *boltKV) LoadPrefix(_ context.Context, prefix string) ([]string, [][]byte, error) {
	keys := make([]string, 0)
	values := make([][]byte, 0)
	err := kv.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(metaBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			keys = append(keys, string(k))
			values = append(values, cloneBytes(v))
		}
		return nil
	})
	if err != nil {
		return nil, nil, ErrCoordinationUnavailable.WithCause(err)
	}
	return keys, values, nil
}

func (kv *boltKV) Commit(_ context.Context, cmps []Cmp, puts []KeyValue) (bool, error) {
	succeeded := false
	err := kv.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(metaBucket)
		c := bucket.Cursor()
		for _, cmp := range cmps {
			k, v := c.Seek([]byte(cmp.Key))
			exists := k != nil && bytes.Equal(k, []byte(cmp.Key))
			if cmp.Missing == exists {
				return nil
			}
			if !cmp.Missing && !bytes.Equal(v, cmp.Value) {
				return nil
			}
		}
		for _, p := range puts {
			if err := bucket.Put([]byte(p.Key), cloneBytes(p.Value)); err != nil {
				return err
			}
		}
		succeeded = true
		return nil
	})
	if err != nil {
		log.Error("commit to bolt failed", zap.Int("puts", len(puts)), zap.Error(err))
		return false, ErrCoordinationUnavailable.WithCause(err)
	}
	if succeeded {
		kv.notifier.notify(puts)
	}
	return succeeded, nil
}

func (kv *boltKV) Watch(ctx context.Context, key string, fn func(KeyValue, bool)) error {
	return kv.notifier.watch(ctx, key, fn)
}

func (kv *boltKV) Close() error {
	return kv.db.Close()
}
