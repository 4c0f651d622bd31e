// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/stretchr/testify/require"
)

const testDHTName = "SK.test"

func newTestStorage() (Storage, *FaultyStore) {
	faulty := NewFaultyStore(NewStore(NewMemKV(), Options{Now: newTestClock()}))
	return NewStorage(faulty), faulty
}

func newTestTopology(name string, cv, iv int64) ring.Topology {
	return ring.Topology{
		Identity:          ring.NewIdentity(name, cv, iv),
		HostGroup:         "hg." + name,
		ReplicationFactor: 2,
		Servers:           []string{"a", "b", "c"},
		Positions:         [][]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	}
}

func TestRingTopology(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, _ := newTestStorage()
	defer s.Close()

	_, err := s.ListRingInstances(ctx, "ring.x")
	re.True(errors.Is(err, ErrRingNotFound))

	created, err := s.CreateRingTopology(ctx, newTestTopology("ring.x", 0, 0))
	re.NoError(err)
	re.False(created.CreatedAt.IsZero())

	_, err = s.CreateRingTopology(ctx, newTestTopology("ring.x", 0, 0))
	re.True(errors.Is(err, ErrRingAlreadyExists))

	_, err = s.CreateRingTopology(ctx, newTestTopology("ring.x", 1, 2))
	re.NoError(err)
	_, err = s.CreateRingTopology(ctx, newTestTopology("ring.x", 0, 1))
	re.NoError(err)

	loaded, err := s.GetRingTopology(ctx, ring.NewIdentity("ring.x", 0, 0))
	re.NoError(err)
	re.Equal(created.Positions, loaded.Positions)
	re.True(created.CreatedAt.Equal(loaded.CreatedAt))

	_, err = s.GetRingTopology(ctx, ring.NewIdentity("ring.x", 5, 5))
	re.True(errors.Is(err, ErrRingNotFound))

	records, err := s.ListRingInstances(ctx, "ring.x")
	re.NoError(err)
	re.Len(records, 3)
	ids := make([]ring.Identity, 0, len(records))
	for _, r := range records {
		re.False(r.CreationTime.IsZero())
		ids = append(ids, r.Identity)
	}
	re.ElementsMatch([]ring.Identity{
		ring.NewIdentity("ring.x", 0, 0),
		ring.NewIdentity("ring.x", 0, 1),
		ring.NewIdentity("ring.x", 1, 2),
	}, ids)

	exists, err := s.RingInstanceExists(ctx, ring.NewIdentity("ring.x", 1, 2))
	re.NoError(err)
	re.True(exists)
	exists, err = s.RingInstanceExists(ctx, ring.NewIdentity("ring.x", 2, 2))
	re.NoError(err)
	re.False(exists)

	_, err = s.CreateRingTopology(ctx, newTestTopology("bad,name", 0, 0))
	re.True(errors.Is(err, ring.ErrInvalidRingIdentity))
}

func TestListRingInstancesUnavailable(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, faulty := newTestStorage()
	defer s.Close()

	_, err := s.CreateRingTopology(ctx, newTestTopology("ring.x", 0, 0))
	re.NoError(err)

	faulty.FailReads(ErrCoordinationUnavailable.WithCausef("injected"))
	records, err := s.ListRingInstances(ctx, "ring.x")
	re.True(errors.Is(err, ErrCoordinationUnavailable))
	re.Nil(records)
}

func TestClassVarsAndDHTConfiguration(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, _ := newTestStorage()
	defer s.Close()

	cv, err := s.PutClassVars(ctx, testDHTName, ClassVars{Name: "classVars.1", Vars: map[string]string{"maxHeapSize": "1g"}})
	re.NoError(err)
	re.Equal(int64(0), cv.Version)
	cv, err = s.PutClassVars(ctx, testDHTName, ClassVars{Name: "classVars.1", Vars: map[string]string{"maxHeapSize": "2g"}})
	re.NoError(err)
	re.Equal(int64(1), cv.Version)

	old, err := s.GetClassVars(ctx, testDHTName, "classVars.1", 0)
	re.NoError(err)
	re.Equal("1g", old.Vars["maxHeapSize"])
	_, err = s.GetClassVars(ctx, testDHTName, "classVars.2", LatestVersion)
	re.True(errors.Is(err, ErrClassVarsNotFound))

	_, err = s.GetDHTConfiguration(ctx, testDHTName, LatestVersion)
	re.True(errors.Is(err, ErrDHTConfigNotFound))

	config := DHTConfiguration{
		RingName:             "ring.x",
		Port:                 7575,
		HostGroupToClassVars: map[string]string{"hg.ring.x": "classVars.1"},
	}
	written, err := s.PutDHTConfiguration(ctx, testDHTName, config)
	re.NoError(err)
	re.Equal(int64(0), written.Version)
	re.False(written.CreatedAt.IsZero())

	// Version 0 exists, writing it again conflicts.
	_, err = s.PutDHTConfiguration(ctx, testDHTName, config)
	re.True(errors.Is(err, ErrVersionConflict))

	config.Version = 1
	config.Port = 7676
	written, err = s.PutDHTConfiguration(ctx, testDHTName, config)
	re.NoError(err)
	re.Equal(int64(1), written.Version)

	latest, err := s.GetDHTConfiguration(ctx, testDHTName, LatestVersion)
	re.NoError(err)
	re.Equal(7676, latest.Port)
	first, err := s.GetDHTConfiguration(ctx, testDHTName, 0)
	re.NoError(err)
	re.Equal(7575, first.Port)
}

func TestCurTarget(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, _ := newTestStorage()
	defer s.Close()

	_, err := s.GetCurTarget(ctx, testDHTName)
	re.True(errors.Is(err, ErrCurTargetNotFound))
	_, err = s.UpdateCurTarget(ctx, testDHTName, func(*CurTargetPointer) error { return nil })
	re.True(errors.Is(err, ErrCurTargetNotFound))

	base := ring.NewIdentity("ring.x", 0, 0)
	pointer, err := s.PutCurTarget(ctx, testDHTName, CurTargetPointer{Current: base, Target: base})
	re.NoError(err)
	re.Equal(int64(0), pointer.Version)

	next := ring.NewIdentity("ring.x", 1, 2)
	pointer, err = s.UpdateCurTarget(ctx, testDHTName, func(p *CurTargetPointer) error {
		p.Target = next
		return nil
	})
	re.NoError(err)
	re.Equal(int64(1), pointer.Version)

	loaded, err := s.GetCurTarget(ctx, testDHTName)
	re.NoError(err)
	re.Equal(base, loaded.Current)
	re.Equal(next, loaded.Target)

	// A failing update leaves the pointer alone.
	injected := errors.New("rejected")
	_, err = s.UpdateCurTarget(ctx, testDHTName, func(*CurTargetPointer) error { return injected })
	re.ErrorIs(err, injected)
	loaded, err = s.GetCurTarget(ctx, testDHTName)
	re.NoError(err)
	re.Equal(int64(1), loaded.Version)
}

func TestUpdateCurTargetConcurrently(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, _ := newTestStorage()
	defer s.Close()

	base := ring.NewIdentity("ring.x", 0, 0)
	_, err := s.PutCurTarget(ctx, testDHTName, CurTargetPointer{Current: base, Target: base})
	re.NoError(err)

	const updaters = 8
	var wg sync.WaitGroup
	for i := 0; i < updaters; i++ {
		wg.Add(1)
		go func(iv int64) {
			defer wg.Done()
			_, err := s.UpdateCurTarget(ctx, testDHTName, func(p *CurTargetPointer) error {
				p.Target = ring.NewIdentity("ring.x", 1, iv)
				return nil
			})
			re.NoError(err)
		}(int64(i))
	}
	wg.Wait()

	pointer, err := s.GetCurTarget(ctx, testDHTName)
	re.NoError(err)
	re.Equal(int64(updaters), pointer.Version)
	re.Equal(base, pointer.Current)
}

func TestConvergenceRequestsAndMode(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	s, _ := newTestStorage()
	defer s.Close()

	_, ok, err := s.GetMode(ctx, testDHTName)
	re.NoError(err)
	re.False(ok)
	re.NoError(s.PutMode(ctx, testDHTName, "Quiesced"))
	mode, ok, err := s.GetMode(ctx, testDHTName)
	re.NoError(err)
	re.True(ok)
	re.Equal("Quiesced", mode)

	requests, err := s.ListConvergenceRequests(ctx, testDHTName)
	re.NoError(err)
	re.Empty(requests)

	first := ConvergenceRequest{ID: "r1", Target: ring.NewIdentity("ring.x", 0, 1), State: "issued", IssuedAt: testEpoch}
	second := ConvergenceRequest{ID: "r0", Target: ring.NewIdentity("ring.x", 0, 2), State: "issued", IssuedAt: testEpoch.Add(1)}
	_, err = s.PutConvergenceRequest(ctx, testDHTName, first)
	re.NoError(err)
	_, err = s.PutConvergenceRequest(ctx, testDHTName, second)
	re.NoError(err)
	first.State = "complete"
	updated, err := s.PutConvergenceRequest(ctx, testDHTName, first)
	re.NoError(err)
	re.Equal(int64(1), updated.Version)

	requests, err = s.ListConvergenceRequests(ctx, testDHTName)
	re.NoError(err)
	re.Len(requests, 2)
	re.Equal("r1", requests[0].ID)
	re.Equal("complete", requests[0].State)
	re.Equal("r0", requests[1].ID)

	_, err = s.GetConvergenceRequest(ctx, testDHTName, "unknown")
	re.True(errors.Is(err, ErrNodeNotFound))

	_, ok, err = s.GetInFlightRequest(ctx, testDHTName)
	re.NoError(err)
	re.False(ok)
	re.NoError(s.PutInFlightRequest(ctx, testDHTName, "r0"))
	id, ok, err := s.GetInFlightRequest(ctx, testDHTName)
	re.NoError(err)
	re.True(ok)
	re.Equal("r0", id)
	re.NoError(s.PutInFlightRequest(ctx, testDHTName, ""))
	_, ok, err = s.GetInFlightRequest(ctx, testDHTName)
	re.NoError(err)
	re.False(ok)
}
