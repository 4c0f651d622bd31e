// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package member

import (
	"context"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// leaderLease is the lease the leader key of a dht instance is attached to.
// The drive loop of the ring master may run only while it is held.
type leaderLease struct {
	lessor clientv3.Lease
	id     clientv3.LeaseID
	ttl    time.Duration
	logger *zap.Logger

	heldUntilL sync.RWMutex
	heldUntil  time.Time
}

func grantLeaderLease(ctx context.Context, client *clientv3.Client, ttlSec int64, logger *zap.Logger) (*leaderLease, error) {
	ttl := time.Duration(ttlSec) * time.Second
	lessor := clientv3.NewLease(client)

	grantCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	resp, err := lessor.Grant(grantCtx, ttlSec)
	if err != nil {
		_ = lessor.Close()
		return nil, ErrGrantLease.WithCause(err)
	}

	l := &leaderLease{
		lessor: lessor,
		id:     resp.ID,
		ttl:    ttl,
		logger: logger.With(zap.Int64("lease-id", int64(resp.ID))),
	}
	l.extend(time.Now().Add(time.Duration(resp.TTL) * time.Second))
	return l, nil
}

// Hold renews the lease and returns once it is lost or ctx is done.
func (l *leaderLease) Hold(ctx context.Context) {
	renewals, err := l.lessor.KeepAlive(ctx, l.id)
	if err != nil {
		l.logger.Error("fail to keep leader lease alive", zap.Error(err))
		return
	}

	for {
		select {
		case resp, ok := <-renewals:
			if !ok {
				l.logger.Info("leader lease renewals stopped")
				return
			}
			l.extend(time.Now().Add(time.Duration(resp.TTL) * time.Second))
		case <-time.After(l.remaining()):
			l.logger.Warn("leader lease expired without renewal")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Release revokes the lease, which deletes the leader key with it.
func (l *leaderLease) Release(ctx context.Context) error {
	l.extend(time.Time{})
	ctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	_, err := l.lessor.Revoke(ctx, l.id)
	if closeErr := l.lessor.Close(); closeErr != nil {
		l.logger.Warn("fail to close lessor", zap.Error(closeErr))
	}
	if err != nil {
		return ErrRevokeLease.WithCause(err)
	}
	return nil
}

func (l *leaderLease) Expired() bool {
	return l.remaining() <= 0
}

func (l *leaderLease) remaining() time.Duration {
	l.heldUntilL.RLock()
	defer l.heldUntilL.RUnlock()
	return time.Until(l.heldUntil)
}

// extend moves the expiry forward, or resets it when t is zero.
func (l *leaderLease) extend(t time.Time) {
	l.heldUntilL.Lock()
	defer l.heldUntilL.Unlock()
	if t.IsZero() || t.After(l.heldUntil) {
		l.heldUntil = t
	}
}
