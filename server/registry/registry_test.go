// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"github.com/stretchr/testify/require"
)

const (
	testDHTName  = "SK.test"
	testRingName = "ring.test"
)

func tickingClock() func() time.Time {
	now := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func frozenClock() func() time.Time {
	now := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestRegistry(t *testing.T, now func() time.Time, ids ...ring.Identity) (*Registry, storage.Storage, *storage.FaultyStore) {
	re := require.New(t)
	faulty := storage.NewFaultyStore(storage.NewStore(storage.NewMemKV(), storage.Options{Now: now}))
	s := storage.NewStorage(faulty)
	for _, id := range ids {
		_, err := s.CreateRingTopology(context.Background(), ring.Topology{Identity: id, HostGroup: "hg"})
		re.NoError(err)
	}
	return New(s, testDHTName), s, faulty
}

func identities(l Listing) []ring.Identity {
	ids := make([]ring.Identity, 0, l.Len())
	for _, r := range l.Records {
		ids = append(ids, r.Identity)
	}
	return ids
}

func TestListVersionsOrderedByCreationTime(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	created := []ring.Identity{
		ring.NewIdentity(testRingName, 1, 0),
		ring.NewIdentity(testRingName, 0, 2),
		ring.NewIdentity(testRingName, 0, 0),
		ring.NewIdentity(testRingName, 2, 1),
	}
	r, s, _ := newTestRegistry(t, tickingClock(), created...)
	defer s.Close()

	listing, err := r.ListVersions(ctx, testRingName)
	re.NoError(err)
	if diff := cmp.Diff(created, identities(listing)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	for i := 1; i < listing.Len(); i++ {
		re.True(listing.Records[i-1].CreationTime.Before(listing.Records[i].CreationTime))
	}
}

func TestListVersionsTieBreak(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	r, s, _ := newTestRegistry(t, frozenClock(),
		ring.NewIdentity(testRingName, 1, 0),
		ring.NewIdentity(testRingName, 0, 2),
		ring.NewIdentity(testRingName, 0, 10),
	)
	defer s.Close()

	listing, err := r.ListVersions(ctx, testRingName)
	re.NoError(err)
	re.Equal([]ring.Identity{
		ring.NewIdentity(testRingName, 0, 2),
		ring.NewIdentity(testRingName, 0, 10),
		ring.NewIdentity(testRingName, 1, 0),
	}, identities(listing))
}

func TestListVersionsLabels(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	base := ring.NewIdentity(testRingName, 0, 0)
	next := ring.NewIdentity(testRingName, 0, 1)
	r, s, _ := newTestRegistry(t, tickingClock(), base, next)
	defer s.Close()

	// No pointer yet, no labels.
	listing, err := r.ListVersions(ctx, testRingName)
	re.NoError(err)
	for _, rec := range listing.Records {
		re.False(rec.Labelled())
	}

	_, err = s.PutCurTarget(ctx, testDHTName, storage.CurTargetPointer{Current: base, Target: base})
	re.NoError(err)
	listing, err = r.ListVersions(ctx, testRingName)
	re.NoError(err)
	re.Equal("current target", listing.Records[0].Label())
	re.Equal("", listing.Records[1].Label())

	_, err = s.UpdateCurTarget(ctx, testDHTName, func(p *storage.CurTargetPointer) error {
		p.Target = next
		return nil
	})
	re.NoError(err)
	listing, err = r.ListVersions(ctx, testRingName)
	re.NoError(err)
	re.Equal("current", listing.Records[0].Label())
	re.Equal("target", listing.Records[1].Label())
}

func TestListVersionsUnavailable(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	r, s, faulty := newTestRegistry(t, tickingClock(), ring.NewIdentity(testRingName, 0, 0))
	defer s.Close()

	faulty.FailReads(storage.ErrCoordinationUnavailable.WithCausef("injected"))
	listing, err := r.ListVersions(ctx, testRingName)
	re.True(errors.Is(err, storage.ErrCoordinationUnavailable))
	re.Zero(listing.Len())

	faulty.Heal()
	_, err = r.ListVersions(ctx, "ring.missing")
	re.True(errors.Is(err, storage.ErrRingNotFound))
}

func TestWindowKeepsLabelledRecords(t *testing.T) {
	re := require.New(t)

	records := make([]ring.Record, 0, 12)
	for i := 0; i < 12; i++ {
		records = append(records, ring.Record{Identity: ring.NewIdentity(testRingName, 0, int64(i))})
	}
	records[1].Current = true
	records[3].Target = true
	records[10].Target = true
	listing := Listing{Records: records}

	indices := func(entries []Entry) []int {
		res := make([]int, 0, len(entries))
		for _, e := range entries {
			res = append(res, e.Index)
		}
		return res
	}

	re.Equal([]int{1, 3, 8, 9, 10, 11}, indices(listing.Window(4)))
	re.Equal([]int{1, 3, 11}, indices(listing.Window(1)))
	re.Len(listing.Window(0), 12)
	re.Len(listing.Window(20), 12)

	id, err := listing.Resolve(3)
	re.NoError(err)
	re.Equal(ring.NewIdentity(testRingName, 0, 3), id)
	_, err = listing.Resolve(12)
	re.ErrorIs(err, ErrIndexOutOfRange)
	_, err = listing.Resolve(-1)
	re.ErrorIs(err, ErrIndexOutOfRange)
}
