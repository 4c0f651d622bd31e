// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

type putFault struct {
	prefix string
	err    error
}

// FaultyStore wraps a Store, failing the operations matching the installed
// faults and recording the paths of successful writes in order.
type FaultyStore struct {
	Store

	mu        sync.Mutex
	putFaults []putFault
	readErr   error
	writes    []string
}

func NewFaultyStore(store Store) *FaultyStore {
	return &FaultyStore{Store: store}
}

// FailPuts makes every write under prefix fail with err.
func (s *FaultyStore) FailPuts(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putFaults = append(s.putFaults, putFault{prefix: prefix, err: err})
}

// FailReads makes every read fail with err.
func (s *FaultyStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Heal removes all the faults.
func (s *FaultyStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putFaults = nil
	s.readErr = nil
}

// Writes returns the paths written so far.
func (s *FaultyStore) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.writes...)
}

func (s *FaultyStore) putErr(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.putFaults {
		if strings.HasPrefix(path, f.prefix) {
			return f.err
		}
	}
	return nil
}

func (s *FaultyStore) recordWrite(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, path)
}

func (s *FaultyStore) getReadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *FaultyStore) Put(ctx context.Context, path string, value []byte) (int64, error) {
	if err := s.putErr(path); err != nil {
		return 0, err
	}
	version, err := s.Store.Put(ctx, path, value)
	if err == nil {
		s.recordWrite(path)
	}
	return version, err
}

func (s *FaultyStore) PutIfVersion(ctx context.Context, path string, value []byte, expect int64) (int64, error) {
	if err := s.putErr(path); err != nil {
		return 0, err
	}
	version, err := s.Store.PutIfVersion(ctx, path, value, expect)
	if err == nil {
		s.recordWrite(path)
	}
	return version, err
}

func (s *FaultyStore) Get(ctx context.Context, path string, version int64) (*Node, error) {
	if err := s.getReadErr(); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, path, version)
}

func (s *FaultyStore) LatestVersion(ctx context.Context, path string) (int64, error) {
	if err := s.getReadErr(); err != nil {
		return 0, err
	}
	return s.Store.LatestVersion(ctx, path)
}

func (s *FaultyStore) Children(ctx context.Context, path string) ([]string, error) {
	if err := s.getReadErr(); err != nil {
		return nil, err
	}
	return s.Store.Children(ctx, path)
}

func (s *FaultyStore) CreationTime(ctx context.Context, path string) (time.Time, error) {
	if err := s.getReadErr(); err != nil {
		return time.Time{}, err
	}
	return s.Store.CreationTime(ctx, path)
}
