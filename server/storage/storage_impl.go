// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/metrics"
	"github.com/ringmeta/ringmeta/server/ring"
	"go.uber.org/zap"
)

const maxUpdateRetries = 16

// metaStorageImpl encodes the ring meta as JSON nodes of a versioned store.
type metaStorageImpl struct {
	store Store
}

func newMetaStorageImpl(store Store) *metaStorageImpl {
	return &metaStorageImpl{store: store}
}

// Return error if the ring instance already exists.
func (s *metaStorageImpl) CreateRingTopology(ctx context.Context, topology ring.Topology) (_ ring.Topology, err error) {
	defer observe("create_ring_topology", time.Now(), &err)

	id := topology.Identity
	if err := id.Validate(); err != nil {
		return ring.Topology{}, err
	}
	value, err := json.Marshal(topology)
	if err != nil {
		return ring.Topology{}, ErrEncode.WithCausef("fail to encode ring topology, ring:%s, err:%v", id, err)
	}

	key := MakeRingInstancePath(id.Name, id.ConfigVersion, id.InstanceVersion)
	if _, err := s.store.PutIfVersion(ctx, key, value, NoVersion); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ring.Topology{}, ErrRingAlreadyExists.WithCausef("ring:%s, key:%s", id, key)
		}
		log.Error("fail to create ring topology", zap.String("key", key), zap.Error(err))
		return ring.Topology{}, err
	}

	createdAt, err := s.store.CreationTime(ctx, key)
	if err != nil {
		return ring.Topology{}, err
	}
	topology.CreatedAt = createdAt
	log.Info("create ring topology", zap.String("key", key), zap.String("ring", id.String()))
	return topology, nil
}

func (s *metaStorageImpl) GetRingTopology(ctx context.Context, id ring.Identity) (_ ring.Topology, err error) {
	defer observe("get_ring_topology", time.Now(), &err)

	if err := id.Validate(); err != nil {
		return ring.Topology{}, err
	}
	key := MakeRingInstancePath(id.Name, id.ConfigVersion, id.InstanceVersion)
	node, err := s.store.Get(ctx, key, 0)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return ring.Topology{}, ErrRingNotFound.WithCausef("ring:%s", id)
		}
		return ring.Topology{}, err
	}

	var topology ring.Topology
	if err := json.Unmarshal(node.Value, &topology); err != nil {
		return ring.Topology{}, ErrDecode.WithCausef("fail to decode ring topology, ring:%s, err:%v", id, err)
	}
	topology.CreatedAt = node.CreatedAt
	return topology, nil
}

func (s *metaStorageImpl) ListRingInstances(ctx context.Context, ringName string) (_ []ring.Record, err error) {
	defer observe("list_ring_instances", time.Now(), &err)

	configVersions, err := s.store.Children(ctx, MakeRingConfigPath(ringName))
	if err != nil {
		return nil, err
	}

	records := make([]ring.Record, 0)
	for _, cvSegment := range configVersions {
		cv, err := ParseID(cvSegment)
		if err != nil {
			return nil, err
		}
		instanceVersions, err := s.store.Children(ctx, MakeRingInstancesPath(ringName, cv))
		if err != nil {
			return nil, err
		}
		for _, ivSegment := range instanceVersions {
			iv, err := ParseID(ivSegment)
			if err != nil {
				return nil, err
			}
			createdAt, err := s.store.CreationTime(ctx, MakeRingInstancePath(ringName, cv, iv))
			if err != nil {
				return nil, err
			}
			records = append(records, ring.Record{
				Identity:     ring.NewIdentity(ringName, cv, iv),
				CreationTime: createdAt,
			})
		}
	}
	if len(records) == 0 {
		return nil, ErrRingNotFound.WithCausef("ring:%s", ringName)
	}
	return records, nil
}

func (s *metaStorageImpl) RingInstanceExists(ctx context.Context, id ring.Identity) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	_, err := s.store.LatestVersion(ctx, MakeRingInstancePath(id.Name, id.ConfigVersion, id.InstanceVersion))
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *metaStorageImpl) PutClassVars(ctx context.Context, dhtName string, classVars ClassVars) (_ ClassVars, err error) {
	defer observe("put_class_vars", time.Now(), &err)

	value, err := json.Marshal(classVars)
	if err != nil {
		return ClassVars{}, ErrEncode.WithCausef("fail to encode class vars, name:%s, err:%v", classVars.Name, err)
	}
	key := MakeClassVarsPath(dhtName, classVars.Name)
	version, err := s.store.Put(ctx, key, value)
	if err != nil {
		log.Error("fail to put class vars", zap.String("key", key), zap.Error(err))
		return ClassVars{}, err
	}

	log.Info("put class vars", zap.String("key", key), zap.Int64("version", version))
	return s.GetClassVars(ctx, dhtName, classVars.Name, version)
}

func (s *metaStorageImpl) GetClassVars(ctx context.Context, dhtName, name string, version int64) (_ ClassVars, err error) {
	defer observe("get_class_vars", time.Now(), &err)

	node, err := s.store.Get(ctx, MakeClassVarsPath(dhtName, name), version)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return ClassVars{}, ErrClassVarsNotFound.WithCausef("dht:%s, name:%s, version:%d", dhtName, name, version)
		}
		return ClassVars{}, err
	}

	var classVars ClassVars
	if err := json.Unmarshal(node.Value, &classVars); err != nil {
		return ClassVars{}, ErrDecode.WithCausef("fail to decode class vars, name:%s, err:%v", name, err)
	}
	classVars.Version = node.Version
	classVars.CreatedAt = node.CreatedAt
	return classVars, nil
}

func (s *metaStorageImpl) PutDHTConfiguration(ctx context.Context, dhtName string, config DHTConfiguration) (_ DHTConfiguration, err error) {
	defer observe("put_dht_configuration", time.Now(), &err)

	if config.Version < 0 {
		return DHTConfiguration{}, ErrEncode.WithCausef("negative config version:%d", config.Version)
	}
	value, err := json.Marshal(config)
	if err != nil {
		return DHTConfiguration{}, ErrEncode.WithCausef("fail to encode dht configuration, dht:%s, err:%v", dhtName, err)
	}

	key := MakeDHTConfigPath(dhtName)
	version, err := s.store.PutIfVersion(ctx, key, value, config.Version-1)
	if err != nil {
		log.Error("fail to put dht configuration", zap.String("key", key), zap.Int64("version", config.Version), zap.Error(err))
		return DHTConfiguration{}, err
	}

	log.Info("put dht configuration", zap.String("key", key), zap.Int64("version", version))
	return s.GetDHTConfiguration(ctx, dhtName, version)
}

func (s *metaStorageImpl) GetDHTConfiguration(ctx context.Context, dhtName string, version int64) (_ DHTConfiguration, err error) {
	defer observe("get_dht_configuration", time.Now(), &err)

	node, err := s.store.Get(ctx, MakeDHTConfigPath(dhtName), version)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return DHTConfiguration{}, ErrDHTConfigNotFound.WithCausef("dht:%s, version:%d", dhtName, version)
		}
		return DHTConfiguration{}, err
	}

	var config DHTConfiguration
	if err := json.Unmarshal(node.Value, &config); err != nil {
		return DHTConfiguration{}, ErrDecode.WithCausef("fail to decode dht configuration, dht:%s, err:%v", dhtName, err)
	}
	config.Version = node.Version
	config.CreatedAt = node.CreatedAt
	return config, nil
}

func (s *metaStorageImpl) PutCurTarget(ctx context.Context, dhtName string, pointer CurTargetPointer) (_ CurTargetPointer, err error) {
	defer observe("put_cur_target", time.Now(), &err)

	value, err := json.Marshal(pointer)
	if err != nil {
		return CurTargetPointer{}, ErrEncode.WithCausef("fail to encode cur target pointer, dht:%s, err:%v", dhtName, err)
	}
	key := MakeCurTargetPath(dhtName)
	version, err := s.store.Put(ctx, key, value)
	if err != nil {
		log.Error("fail to put cur target pointer", zap.String("key", key), zap.Error(err))
		return CurTargetPointer{}, err
	}

	pointer.Version = version
	log.Info("put cur target pointer", zap.String("key", key), zap.Int64("version", version),
		zap.String("current", pointer.Current.String()), zap.String("target", pointer.Target.String()))
	return pointer, nil
}

func (s *metaStorageImpl) GetCurTarget(ctx context.Context, dhtName string) (_ CurTargetPointer, err error) {
	defer observe("get_cur_target", time.Now(), &err)

	return s.getCurTarget(ctx, dhtName)
}

func (s *metaStorageImpl) getCurTarget(ctx context.Context, dhtName string) (CurTargetPointer, error) {
	node, err := s.store.Get(ctx, MakeCurTargetPath(dhtName), LatestVersion)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return CurTargetPointer{}, ErrCurTargetNotFound.WithCausef("dht:%s", dhtName)
		}
		return CurTargetPointer{}, err
	}

	var pointer CurTargetPointer
	if err := json.Unmarshal(node.Value, &pointer); err != nil {
		return CurTargetPointer{}, ErrDecode.WithCausef("fail to decode cur target pointer, dht:%s, err:%v", dhtName, err)
	}
	pointer.Version = node.Version
	return pointer, nil
}

func (s *metaStorageImpl) UpdateCurTarget(ctx context.Context, dhtName string, fn func(*CurTargetPointer) error) (_ CurTargetPointer, err error) {
	defer observe("update_cur_target", time.Now(), &err)

	key := MakeCurTargetPath(dhtName)
	for i := 0; i < maxUpdateRetries; i++ {
		pointer, err := s.getCurTarget(ctx, dhtName)
		if err != nil {
			return CurTargetPointer{}, err
		}
		expect := pointer.Version
		if err := fn(&pointer); err != nil {
			return CurTargetPointer{}, err
		}

		value, err := json.Marshal(pointer)
		if err != nil {
			return CurTargetPointer{}, ErrEncode.WithCausef("fail to encode cur target pointer, dht:%s, err:%v", dhtName, err)
		}
		version, err := s.store.PutIfVersion(ctx, key, value, expect)
		if err == nil {
			pointer.Version = version
			log.Info("update cur target pointer", zap.String("key", key), zap.Int64("version", version),
				zap.String("current", pointer.Current.String()), zap.String("target", pointer.Target.String()))
			return pointer, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			log.Error("fail to update cur target pointer", zap.String("key", key), zap.Error(err))
			return CurTargetPointer{}, err
		}
		log.Debug("cur target pointer modified concurrently, retry", zap.String("key", key), zap.Int64("expect", expect))
	}
	return CurTargetPointer{}, ErrVersionConflict.WithCausef("update cur target pointer, dht:%s, retries:%d", dhtName, maxUpdateRetries)
}

func (s *metaStorageImpl) WatchCurTarget(ctx context.Context, dhtName string, fn func(version int64)) error {
	return s.store.Watch(ctx, MakeCurTargetPath(dhtName), func(ev Event) {
		if ev.Type == EventPut {
			fn(ev.Version)
		}
	})
}

func (s *metaStorageImpl) PutConvergenceRequest(ctx context.Context, dhtName string, request ConvergenceRequest) (_ ConvergenceRequest, err error) {
	defer observe("put_convergence_request", time.Now(), &err)

	value, err := json.Marshal(request)
	if err != nil {
		return ConvergenceRequest{}, ErrEncode.WithCausef("fail to encode convergence request, id:%s, err:%v", request.ID, err)
	}
	key := MakeConvergenceRequestPath(dhtName, request.ID)
	version, err := s.store.Put(ctx, key, value)
	if err != nil {
		log.Error("fail to put convergence request", zap.String("key", key), zap.Error(err))
		return ConvergenceRequest{}, err
	}

	request.Version = version
	log.Info("put convergence request", zap.String("key", key), zap.Int64("version", version), zap.String("state", request.State))
	return request, nil
}

func (s *metaStorageImpl) GetConvergenceRequest(ctx context.Context, dhtName, id string) (_ ConvergenceRequest, err error) {
	defer observe("get_convergence_request", time.Now(), &err)

	node, err := s.store.Get(ctx, MakeConvergenceRequestPath(dhtName, id), LatestVersion)
	if err != nil {
		return ConvergenceRequest{}, err
	}

	var request ConvergenceRequest
	if err := json.Unmarshal(node.Value, &request); err != nil {
		return ConvergenceRequest{}, ErrDecode.WithCausef("fail to decode convergence request, id:%s, err:%v", id, err)
	}
	request.Version = node.Version
	return request, nil
}

func (s *metaStorageImpl) ListConvergenceRequests(ctx context.Context, dhtName string) (_ []ConvergenceRequest, err error) {
	defer observe("list_convergence_requests", time.Now(), &err)

	ids, err := s.store.Children(ctx, MakeConvergenceRequestsPath(dhtName))
	if err != nil {
		return nil, err
	}
	requests := make([]ConvergenceRequest, 0, len(ids))
	for _, id := range ids {
		request, err := s.GetConvergenceRequest(ctx, dhtName, id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].IssuedAt.Before(requests[j].IssuedAt)
	})
	return requests, nil
}

func (s *metaStorageImpl) PutInFlightRequest(ctx context.Context, dhtName, id string) (err error) {
	defer observe("put_in_flight_request", time.Now(), &err)

	key := MakeInFlightRequestPath(dhtName)
	version, err := s.store.Put(ctx, key, []byte(id))
	if err != nil {
		log.Error("fail to put in-flight request", zap.String("key", key), zap.Error(err))
		return err
	}
	log.Debug("put in-flight request", zap.String("key", key), zap.Int64("version", version), zap.String("id", id))
	return nil
}

func (s *metaStorageImpl) GetInFlightRequest(ctx context.Context, dhtName string) (_ string, _ bool, err error) {
	defer observe("get_in_flight_request", time.Now(), &err)

	node, err := s.store.Get(ctx, MakeInFlightRequestPath(dhtName), LatestVersion)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(node.Value) == 0 {
		return "", false, nil
	}
	return string(node.Value), true, nil
}

func (s *metaStorageImpl) PutMode(ctx context.Context, dhtName, mode string) (err error) {
	defer observe("put_mode", time.Now(), &err)

	key := MakeModePath(dhtName)
	version, err := s.store.Put(ctx, key, []byte(mode))
	if err != nil {
		log.Error("fail to put mode", zap.String("key", key), zap.Error(err))
		return err
	}
	log.Info("put mode", zap.String("key", key), zap.Int64("version", version), zap.String("mode", mode))
	return nil
}

func (s *metaStorageImpl) GetMode(ctx context.Context, dhtName string) (_ string, _ bool, err error) {
	defer observe("get_mode", time.Now(), &err)

	node, err := s.store.Get(ctx, MakeModePath(dhtName), LatestVersion)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(node.Value), true, nil
}

func (s *metaStorageImpl) Close() error {
	return s.store.Close()
}

func observe(op string, begin time.Time, err *error) {
	metrics.ObserveStoreOp(op, begin, *err)
}
