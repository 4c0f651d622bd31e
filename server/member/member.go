// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

// Package member elects the single process that drives the ring master of
// a dht instance when several meta servers share one etcd.
package member

import (
	"context"
	"path"
	"time"

	"github.com/ringmeta/ringmeta/pkg/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const leaderKeyName = "ringmaster_leader"

// Member is one candidate for the leadership of a dht instance.
type Member struct {
	Name string

	client      *clientv3.Client
	leaderKey   string
	leaseTTLSec int64
	rpcTimeout  time.Duration
	logger      *zap.Logger
}

func NewMember(client *clientv3.Client, rootPath, dhtName, name string, leaseTTLSec int64, rpcTimeout time.Duration) *Member {
	return &Member{
		Name:        name,
		client:      client,
		leaderKey:   path.Join(rootPath, dhtName, leaderKeyName),
		leaseTTLSec: leaseTTLSec,
		rpcTimeout:  rpcTimeout,
		logger:      log.With(zap.String("member", name), zap.String("dht", dhtName)),
	}
}

// GetLeader returns the name of the current leader, empty when there is none.
func (m *Member) GetLeader(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	resp, err := m.client.Get(ctx, m.leaderKey)
	if err != nil {
		return "", ErrGetLeader.WithCause(err)
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

// IsLeader tells whether m holds the leadership.
func (m *Member) IsLeader(ctx context.Context) (bool, error) {
	leader, err := m.GetLeader(ctx)
	if err != nil {
		return false, err
	}
	return leader == m.Name, nil
}

// campaign tries to become the leader. On success the returned lease holds
// the leader key. On failure the revision to watch the leader key from is
// returned instead.
func (m *Member) campaign(ctx context.Context) (*leaderLease, int64, error) {
	l, err := grantLeaderLease(ctx, m.client, m.leaseTTLSec, m.logger)
	if err != nil {
		return nil, 0, err
	}

	cmp := clientv3.Compare(clientv3.CreateRevision(m.leaderKey), "=", 0)
	put := clientv3.OpPut(m.leaderKey, m.Name, clientv3.WithLease(l.id))
	get := clientv3.OpGet(m.leaderKey)
	txnCtx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	resp, err := m.client.Txn(txnCtx).If(cmp).Then(put).Else(get).Commit()
	cancel()
	if err == nil && resp.Succeeded {
		m.logger.Info("campaign leader succeeded")
		return l, 0, nil
	}

	if releaseErr := l.Release(ctx); releaseErr != nil {
		m.logger.Warn("fail to release unused lease", zap.Error(releaseErr))
	}
	if err != nil {
		return nil, 0, ErrCampaign.WithCause(err)
	}

	rangeResp := resp.Responses[0].GetResponseRange()
	if rangeResp != nil && len(rangeResp.Kvs) > 0 {
		m.logger.Debug("leader exists", zap.String("leader", string(rangeResp.Kvs[0].Value)))
	}
	return nil, resp.Header.Revision + 1, nil
}

// ResetLeader gives up the leadership if m holds it.
func (m *Member) ResetLeader(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	cmp := clientv3.Compare(clientv3.Value(m.leaderKey), "=", m.Name)
	if _, err := m.client.Txn(ctx).If(cmp).Then(clientv3.OpDelete(m.leaderKey)).Commit(); err != nil {
		return ErrResetLeader.WithCause(err)
	}
	return nil
}

// waitForLeaderChange blocks until the leader key is deleted or ctx is done.
func (m *Member) waitForLeaderChange(ctx context.Context, rev int64) error {
	watcher := clientv3.NewWatcher(m.client)
	defer func() {
		if err := watcher.Close(); err != nil {
			m.logger.Warn("fail to close leader watcher", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for resp := range watcher.Watch(ctx, m.leaderKey, clientv3.WithRev(rev)) {
		if err := resp.Err(); err != nil {
			return ErrWatchLeader.WithCause(err)
		}
		for _, ev := range resp.Events {
			if ev.Type == clientv3.EventTypeDelete {
				m.logger.Info("leader is gone")
				return nil
			}
		}
	}
	return ctx.Err()
}
