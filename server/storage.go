// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package server

import (
	"os"
	"path/filepath"

	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/config"
	"github.com/ringmeta/ringmeta/server/storage"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// OpenStorage opens the meta storage on the configured backend.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	opts := storage.Options{}
	switch cfg.StoreBackend {
	case config.StoreBackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: cfg.RequestTimeout(),
			Logger:      log.GetLogger().Named("etcd-client"),
		})
		if err != nil {
			return nil, ErrCreateEtcdClient.WithCause(err)
		}
		log.Info("open etcd meta storage", zap.Strings("endpoints", cfg.EtcdEndpoints), zap.String("root", cfg.EtcdRootPath))
		return &etcdStorage{
			Storage: storage.NewStorageWithEtcdBackend(client, cfg.EtcdRootPath, opts),
			client:  client,
		}, nil
	case config.StoreBackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), os.ModePerm); err != nil {
			return nil, ErrOpenStorage.WithCausef("bolt path:%s, err:%v", cfg.BoltPath, err)
		}
		s, err := storage.NewStorageWithBoltBackend(cfg.BoltPath, opts)
		if err != nil {
			return nil, ErrOpenStorage.WithCause(err)
		}
		log.Info("open bbolt meta storage", zap.String("path", cfg.BoltPath))
		return s, nil
	case config.StoreBackendMemory:
		log.Warn("open in-memory meta storage, nothing survives a restart")
		return storage.NewStorageWithMemoryBackend(opts), nil
	}
	return nil, ErrUnknownStoreBackend.WithCausef("backend:%s", cfg.StoreBackend)
}

// etcdStorage owns its etcd client.
type etcdStorage struct {
	storage.Storage
	client *clientv3.Client
}

// etcdClientOf returns the etcd client behind s, if any.
func etcdClientOf(s storage.Storage) (*clientv3.Client, bool) {
	es, ok := s.(*etcdStorage)
	if !ok {
		return nil, false
	}
	return es.client, true
}

func (s *etcdStorage) Close() error {
	if err := s.Storage.Close(); err != nil {
		return err
	}
	return s.client.Close()
}
