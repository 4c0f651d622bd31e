// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package convergence

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/ringmeta/ringmeta/server/storage"
	"github.com/stretchr/testify/require"
)

const (
	testDHTName  = "SK.test"
	testRingName = "ring.X"
)

var (
	baseRing = ring.NewIdentity(testRingName, 0, 0)
	nextRing = ring.NewIdentity(testRingName, 1, 2)
)

type testEnv struct {
	storage    storage.Storage
	local      *ringmaster.Local
	controller *Controller
	registry   *registry.Registry
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	re := require.New(t)
	ctx := context.Background()

	s := storage.NewStorageWithMemoryBackend(storage.Options{})
	for _, id := range []ring.Identity{baseRing, nextRing} {
		_, err := s.CreateRingTopology(ctx, ring.Topology{Identity: id, HostGroup: "hg"})
		re.NoError(err)
	}
	_, err := s.PutDHTConfiguration(ctx, testDHTName, storage.DHTConfiguration{RingName: testRingName, Port: 7575})
	re.NoError(err)
	_, err = s.PutCurTarget(ctx, testDHTName, storage.CurTargetPointer{Current: baseRing, Target: baseRing})
	re.NoError(err)

	local := ringmaster.NewLocal(s, testDHTName, ringmaster.LocalOptions{})
	t.Cleanup(func() { _ = s.Close() })
	return &testEnv{
		storage:    s,
		local:      local,
		controller: NewController(s, local, testDHTName, opts),
		registry:   registry.New(s, testDHTName),
	}
}

func TestSetTargetScenario(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	re.Equal(StateIdle, c.State())

	id, err := c.SetTargetString(ctx, "ring.X,1,2")
	re.NoError(err)
	re.NotEqual(uuid.Nil, id)
	re.Equal(StateRequestIssued, c.State())
	last, ok := c.LastRequest()
	re.True(ok)
	re.Equal(id, last)

	status, ok, err := c.GetStatus(ctx, id)
	re.NoError(err)
	re.True(ok)
	re.False(status.RequestComplete())

	current, ok, err := c.GetCurrentConvergenceID(ctx)
	re.NoError(err)
	re.True(ok)
	re.Equal(id, current)

	// Only the target moved.
	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Current)
	re.Equal(nextRing, pointer.Target)

	listing, err := env.registry.ListVersions(ctx, testRingName)
	re.NoError(err)
	labels := map[ring.Identity]string{}
	for _, r := range listing.Records {
		labels[r.Identity] = r.Label()
	}
	re.Equal("current", labels[baseRing])
	re.Equal("target", labels[nextRing])

	_, err = env.local.Advance(ctx, id, ringmaster.RequestComplete, "")
	re.NoError(err)

	status, ok, err = c.GetStatus(ctx, id)
	re.NoError(err)
	re.True(ok)
	re.True(status.RequestComplete())
	re.Equal(StateIdle, c.State())

	_, ok, err = c.GetCurrentConvergenceID(ctx)
	re.NoError(err)
	re.False(ok)

	// Terminal statuses stay terminal.
	for i := 0; i < 3; i++ {
		again, ok, err := c.GetStatus(ctx, id)
		re.NoError(err)
		re.True(ok)
		re.True(again.RequestComplete())
	}

	listing, err = env.registry.ListVersions(ctx, testRingName)
	re.NoError(err)
	for _, r := range listing.Records {
		if r.Identity == nextRing {
			re.Equal("current target", r.Label())
		} else {
			re.False(r.Labelled())
		}
	}
}

func TestSetTargetInvalidIdentity(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	before, err := c.GetCurTarget(ctx)
	re.NoError(err)

	for _, bad := range []string{"not-a-valid-identity", "ring.X,1", "ring.X,1,2,3", "ring.X,a,2", "ring.X,1,-2", ",1,2", "..,1,2", "@x,0,0"} {
		_, err := c.SetTargetString(ctx, bad)
		re.ErrorIs(err, ring.ErrInvalidRingIdentity, "input:%q", bad)
	}

	_, err = c.SetTarget(ctx, ring.NewIdentity(testRingName, 7, 7))
	re.ErrorIs(err, storage.ErrRingNotFound)

	after, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(before, after)
	re.Equal(StateIdle, c.State())

	_, ok, err := c.GetCurrentConvergenceID(ctx)
	re.NoError(err)
	re.False(ok)
}

func TestSetTargetFailedRequest(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	id, err := c.SetTarget(ctx, nextRing)
	re.NoError(err)
	_, err = env.local.Advance(ctx, id, ringmaster.RequestFailed, "migration aborted")
	re.NoError(err)

	status, ok, err := c.GetStatus(ctx, id)
	re.NoError(err)
	re.True(ok)
	re.True(status.RequestComplete())
	re.False(status.Succeeded())
	re.Equal(StateIdle, c.State())

	// The current ring did not move.
	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Current)

	// A new request can be issued after a failure.
	_, err = c.SetTarget(ctx, baseRing)
	re.NoError(err)
	re.Equal(StateRequestIssued, c.State())
}

func TestSetTargetSupersedes(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	first, err := c.SetTarget(ctx, nextRing)
	re.NoError(err)
	second, err := c.SetTarget(ctx, baseRing)
	re.NoError(err)
	re.Equal(StateRequestIssued, c.State())

	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Target)

	status, _, err := c.GetStatus(ctx, first)
	re.NoError(err)
	re.Equal(ringmaster.RequestFailed, status.State)
	// The superseded request does not settle the controller.
	re.Equal(StateRequestIssued, c.State())

	current, ok, err := c.GetCurrentConvergenceID(ctx)
	re.NoError(err)
	re.True(ok)
	re.Equal(second, current)
}

func TestSetTargetRejectWhileConverging(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{RejectWhileConverging: true})
	c := env.controller

	id, err := c.SetTarget(ctx, nextRing)
	re.NoError(err)
	_, err = c.SetTarget(ctx, baseRing)
	re.ErrorIs(err, ErrConvergenceInProgress)

	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(nextRing, pointer.Target)

	_, err = env.local.Advance(ctx, id, ringmaster.RequestComplete, "")
	re.NoError(err)
	_, err = c.SetTarget(ctx, baseRing)
	re.NoError(err)
}

func TestConcurrentSetTargetLastWriteWins(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	targets := []ring.Identity{baseRing, nextRing, baseRing, nextRing}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target ring.Identity) {
			defer wg.Done()
			_, errs[i] = c.SetTarget(ctx, target)
		}(i, target)
	}
	wg.Wait()
	for _, err := range errs {
		re.NoError(err)
	}

	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Current)
	re.Contains([]ring.Identity{baseRing, nextRing}, pointer.Target)
	re.Equal(int64(4), pointer.Version)
}

func TestModePassThrough(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := env.controller

	m, err := c.GetMode(ctx)
	re.NoError(err)
	re.Equal(mode.Active, m)

	re.ErrorIs(c.SetModeString(ctx, "Paused"), mode.ErrInvalidMode)
	re.NoError(c.SetModeString(ctx, "quiesced"))
	m, err = c.GetMode(ctx)
	re.NoError(err)
	re.Equal(mode.Quiesced, m)

	// The ring master owns the gating policy.
	_, err = c.SetTarget(ctx, nextRing)
	re.ErrorIs(err, ringmaster.ErrTargetRejected)
	re.Equal(StateIdle, c.State())
	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Target)
	re.Equal(baseRing, pointer.Current)

	config, err := c.GetDHTConfiguration(ctx)
	re.NoError(err)
	re.Equal(testRingName, config.RingName)
}

// refusingDelegate fails every SetTarget, after running beforeFail.
type refusingDelegate struct {
	*ringmaster.Local
	beforeFail func(ctx context.Context)
}

func (d *refusingDelegate) SetTarget(ctx context.Context, _ ring.Identity) (uuid.UUID, error) {
	if d.beforeFail != nil {
		d.beforeFail(ctx)
	}
	return uuid.Nil, ringmaster.ErrControlPlaneUnreachable.WithCausef("connection refused")
}

func TestSetTargetUnreachableRestoresTarget(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	c := NewController(env.storage, &refusingDelegate{Local: env.local}, testDHTName, Options{})

	_, err := c.SetTarget(ctx, nextRing)
	re.ErrorIs(err, ringmaster.ErrControlPlaneUnreachable)
	re.Equal(StateIdle, c.State())

	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(baseRing, pointer.Target)

	// No listing labels the refused ring as target.
	listing, err := env.registry.ListVersions(ctx, testRingName)
	re.NoError(err)
	for _, rec := range listing.Records {
		re.Equal(rec.Identity == baseRing, rec.Target, rec.Identity.String())
	}
}

func TestSetTargetRestoreKeepsNewerTarget(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	newer := ring.NewIdentity(testRingName, 1, 3)
	delegate := &refusingDelegate{
		Local: env.local,
		beforeFail: func(ctx context.Context) {
			_, err := env.storage.UpdateCurTarget(ctx, testDHTName, func(p *storage.CurTargetPointer) error {
				p.Target = newer
				return nil
			})
			re.NoError(err)
		},
	}
	c := NewController(env.storage, delegate, testDHTName, Options{})

	_, err := c.SetTarget(ctx, nextRing)
	re.ErrorIs(err, ringmaster.ErrControlPlaneUnreachable)

	pointer, err := c.GetCurTarget(ctx)
	re.NoError(err)
	re.Equal(newer, pointer.Target)
}
