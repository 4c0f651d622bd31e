// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ringmeta/ringmeta/pkg/log"
	"go.uber.org/zap"
)

const defaultMaxPutRetries = 16

type Options struct {
	// MaxPutRetries bounds the retries of a Put racing other writers on the same node.
	MaxPutRetries int
	// Now stamps the creation time of every version.
	Now func() time.Time
}

// versionedStore lays versioned nodes out on a flat KV:
//
//	/n{path}/@latest        -> latest version
//	/n{path}/@v/{version}   -> nodeRecord
//	/c{parent}/@/{child}    -> "" (child index)
type versionedStore struct {
	kv   KV
	opts Options
}

type nodeRecord struct {
	CreatedAt time.Time `json:"createdAt"`
	Value     []byte    `json:"value"`
}

// NewStore builds the versioned node store on a flat KV backend.
func NewStore(kv KV, opts Options) Store {
	if opts.MaxPutRetries <= 0 {
		opts.MaxPutRetries = defaultMaxPutRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &versionedStore{kv: kv, opts: opts}
}

func (s *versionedStore) Put(ctx context.Context, path string, value []byte) (int64, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}

	for i := 0; i < s.opts.MaxPutRetries; i++ {
		latest, raw, err := s.loadLatest(ctx, path)
		if err != nil {
			return 0, err
		}
		version, ok, err := s.commitNext(ctx, path, latest, raw, value)
		if err != nil {
			return 0, err
		}
		if ok {
			return version, nil
		}
		log.Debug("put raced another writer, retry", zap.String("path", path), zap.Int64("latest", latest))
	}
	return 0, ErrVersionConflict.WithCausef("path:%s, retries:%d", path, s.opts.MaxPutRetries)
}

func (s *versionedStore) PutIfVersion(ctx context.Context, path string, value []byte, expect int64) (int64, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}

	latest, raw, err := s.loadLatest(ctx, path)
	if err != nil {
		return 0, err
	}
	if latest != expect {
		return 0, ErrVersionConflict.WithCausef("path:%s, expect:%d, latest:%d", path, expect, latest)
	}
	version, ok, err := s.commitNext(ctx, path, latest, raw, value)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrVersionConflict.WithCausef("path:%s, expect:%d, modified concurrently", path, expect)
	}
	return version, nil
}

// commitNext writes latest+1 guarded by the latest pointer still holding raw.
func (s *versionedStore) commitNext(ctx context.Context, path string, latest int64, raw []byte, value []byte) (int64, bool, error) {
	version := latest + 1
	record, err := json.Marshal(nodeRecord{CreatedAt: s.opts.Now().UTC(), Value: value})
	if err != nil {
		return 0, false, ErrEncode.WithCausef("path:%s, err:%v", path, err)
	}

	latestKey := makeLatestKey(path)
	cmps := []Cmp{{Key: latestKey, Value: raw}}
	puts := []KeyValue{
		{Key: latestKey, Value: []byte(fmtID(version))},
		{Key: makeVersionKey(path, version), Value: record},
	}
	if latest == NoVersion {
		cmps = []Cmp{{Key: latestKey, Missing: true}}
		puts = append(puts, childIndexPuts(path)...)
	}

	ok, err := s.kv.Commit(ctx, cmps, puts)
	if err != nil {
		return 0, false, err
	}
	return version, ok, nil
}

func (s *versionedStore) loadLatest(ctx context.Context, path string) (int64, []byte, error) {
	raw, ok, err := s.kv.Load(ctx, makeLatestKey(path))
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return NoVersion, nil, nil
	}
	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil, ErrDecode.WithCausef("bad latest version, path:%s, value:%q", path, raw)
	}
	return version, raw, nil
}

func (s *versionedStore) Get(ctx context.Context, path string, version int64) (*Node, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	if version == LatestVersion {
		latest, _, err := s.loadLatest(ctx, path)
		if err != nil {
			return nil, err
		}
		if latest == NoVersion {
			return nil, ErrNodeNotFound.WithCausef("path:%s", path)
		}
		version = latest
	}

	raw, ok, err := s.kv.Load(ctx, makeVersionKey(path, version))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNodeNotFound.WithCausef("path:%s, version:%d", path, version)
	}

	var record nodeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, ErrDecode.WithCausef("path:%s, version:%d, err:%v", path, version, err)
	}
	return &Node{
		Path:      path,
		Version:   version,
		Value:     record.Value,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (s *versionedStore) LatestVersion(ctx context.Context, path string) (int64, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}

	latest, _, err := s.loadLatest(ctx, path)
	if err != nil {
		return 0, err
	}
	if latest == NoVersion {
		return 0, ErrNodeNotFound.WithCausef("path:%s", path)
	}
	return latest, nil
}

func (s *versionedStore) Children(ctx context.Context, path string) ([]string, error) {
	if path != pathDelimiter {
		if err := validatePath(path); err != nil {
			return nil, err
		}
	}

	prefix := makeChildIndexPrefix(path)
	keys, _, err := s.kv.LoadPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(keys))
	for _, key := range keys {
		children = append(children, strings.TrimPrefix(key, prefix))
	}
	sort.Strings(children)
	return children, nil
}

func (s *versionedStore) CreationTime(ctx context.Context, path string) (time.Time, error) {
	node, err := s.Get(ctx, path, 0)
	if err != nil {
		return time.Time{}, err
	}
	return node.CreatedAt, nil
}

func (s *versionedStore) Watch(ctx context.Context, path string, fn func(Event)) error {
	if err := validatePath(path); err != nil {
		return err
	}

	return s.kv.Watch(ctx, makeLatestKey(path), func(kv KeyValue, deleted bool) {
		if deleted {
			fn(Event{Type: EventDelete, Path: path, Version: NoVersion})
			return
		}
		version, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			log.Warn("ignore watch event with bad version", zap.String("path", path), zap.ByteString("value", kv.Value))
			return
		}
		fn(Event{Type: EventPut, Path: path, Version: version})
	})
}

func (s *versionedStore) Close() error {
	return s.kv.Close()
}

// childIndexPuts registers every segment of the path under its parent.
func childIndexPuts(path string) []KeyValue {
	segments := splitPath(path)
	puts := make([]KeyValue, 0, len(segments))
	parent := pathDelimiter
	for _, segment := range segments {
		puts = append(puts, KeyValue{Key: makeChildIndexPrefix(parent) + segment, Value: []byte{}})
		parent = joinPath(parent, segment)
	}
	return puts
}
