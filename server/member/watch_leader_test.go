// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package member

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ringmeta/ringmeta/server/etcdutil/etcdtest"
	"github.com/stretchr/testify/require"
)

const (
	testRootPath    = "/ringmeta-test"
	testDHTName     = "SK.test"
	testLeaseTTLSec = 2
	testRPCTimeout  = 5 * time.Second
	waitTimeout     = 10 * time.Second
)

type watchHandle struct {
	elected chan struct{}
	done    chan error
	cancel  context.CancelFunc
}

func startWatch(m *Member) *watchHandle {
	h := &watchHandle{
		elected: make(chan struct{}, 1),
		done:    make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	w := NewLeaderWatcher(m, func(ctx context.Context) error {
		h.elected <- struct{}{}
		<-ctx.Done()
		return nil
	})
	go func() {
		h.done <- w.Watch(ctx)
	}()
	return h
}

func waitOrFail(t *testing.T, ch <-chan struct{}, what string) {
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestWatchLeaderFailover(t *testing.T) {
	re := require.New(t)
	_, client, closeSrv := etcdtest.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	ctx := context.Background()
	m0 := NewMember(client, testRootPath, testDHTName, "meta0", testLeaseTTLSec, testRPCTimeout)
	m1 := NewMember(client, testRootPath, testDHTName, "meta1", testLeaseTTLSec, testRPCTimeout)

	leader, err := m0.GetLeader(ctx)
	re.NoError(err)
	re.Empty(leader)

	h0 := startWatch(m0)
	waitOrFail(t, h0.elected, "meta0 elected")
	leader, err = m0.GetLeader(ctx)
	re.NoError(err)
	re.Equal("meta0", leader)

	h1 := startWatch(m1)
	defer h1.cancel()
	select {
	case <-h1.elected:
		t.Fatal("meta1 must not lead while meta0 holds the lease")
	case <-time.After(300 * time.Millisecond):
	}
	isLeader, err := m1.IsLeader(ctx)
	re.NoError(err)
	re.False(isLeader)

	h0.cancel()
	re.NoError(<-h0.done)

	waitOrFail(t, h1.elected, "meta1 elected")
	leader, err = m1.GetLeader(ctx)
	re.NoError(err)
	re.Equal("meta1", leader)
}

func TestWatchLeaderJobFailure(t *testing.T) {
	re := require.New(t)
	_, client, closeSrv := etcdtest.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	ctx := context.Background()
	m := NewMember(client, testRootPath, testDHTName, "meta0", testLeaseTTLSec, testRPCTimeout)
	jobErr := errors.New("drive failed")
	w := NewLeaderWatcher(m, func(ctx context.Context) error {
		return jobErr
	})
	re.ErrorIs(w.Watch(ctx), jobErr)

	leader, err := m.GetLeader(ctx)
	re.NoError(err)
	re.Empty(leader)
}

func TestResetLeader(t *testing.T) {
	re := require.New(t)
	_, client, closeSrv := etcdtest.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	ctx := context.Background()
	m0 := NewMember(client, testRootPath, testDHTName, "meta0", testLeaseTTLSec, testRPCTimeout)
	m1 := NewMember(client, testRootPath, testDHTName, "meta1", testLeaseTTLSec, testRPCTimeout)

	l, _, err := m0.campaign(ctx)
	re.NoError(err)
	re.NotNil(l)
	re.False(l.Expired())
	defer func() {
		_ = l.Release(ctx)
	}()

	l1, rev, err := m1.campaign(ctx)
	re.NoError(err)
	re.Nil(l1)
	re.Positive(rev)

	// Only the holder can reset.
	re.NoError(m1.ResetLeader(ctx))
	leader, err := m1.GetLeader(ctx)
	re.NoError(err)
	re.Equal("meta0", leader)

	re.NoError(m0.ResetLeader(ctx))
	re.NoError(m1.waitForLeaderChange(ctx, rev))
	leader, err = m1.GetLeader(ctx)
	re.NoError(err)
	re.Empty(leader)
}

func TestLeaderLeaseReleaseDropsLeaderKey(t *testing.T) {
	re := require.New(t)
	_, client, closeSrv := etcdtest.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMember(client, testRootPath, testDHTName, "meta0", testLeaseTTLSec, testRPCTimeout)
	l, _, err := m.campaign(ctx)
	re.NoError(err)
	re.NotNil(l)

	held := make(chan struct{})
	go func() {
		l.Hold(ctx)
		close(held)
	}()
	// Renewals keep the lease past its ttl.
	time.Sleep(time.Duration(testLeaseTTLSec)*time.Second + 500*time.Millisecond)
	re.False(l.Expired())
	leader, err := m.GetLeader(ctx)
	re.NoError(err)
	re.Equal("meta0", leader)

	cancel()
	<-held
	re.NoError(l.Release(context.Background()))
	re.True(l.Expired())
	leader, err = m.GetLeader(context.Background())
	re.NoError(err)
	re.Empty(leader)
}
