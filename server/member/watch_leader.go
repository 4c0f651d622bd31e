// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package member

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const WatchLeaderFailInterval = time.Duration(200) * time.Millisecond

// LeaderWatcher campaigns in a loop and runs the leader job while self is
// the leader.
type LeaderWatcher struct {
	self *Member
	// lead runs while the leadership is held. Its ctx is canceled once the
	// leadership is lost.
	lead func(ctx context.Context) error
}

func NewLeaderWatcher(self *Member, lead func(ctx context.Context) error) *LeaderWatcher {
	return &LeaderWatcher{
		self: self,
		lead: lead,
	}
}

// Watch blocks until ctx is done, or the leader job fails.
func (w *LeaderWatcher) Watch(ctx context.Context) error {
	logger := w.self.logger
	for ctx.Err() == nil {
		l, rev, err := w.self.campaign(ctx)
		if err != nil {
			logger.Error("fail to campaign leader", zap.Error(err))
			w.sleep(ctx)
			continue
		}

		if l == nil {
			if err := w.self.waitForLeaderChange(ctx, rev); err != nil && ctx.Err() == nil {
				logger.Error("fail to wait for leader change", zap.Error(err))
				w.sleep(ctx)
			}
			continue
		}

		if err := w.keepLeader(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (w *LeaderWatcher) keepLeader(ctx context.Context, l *leaderLease) error {
	leadCtx, cancel := context.WithCancel(ctx)
	go func() {
		l.Hold(leadCtx)
		cancel()
	}()

	err := w.lead(leadCtx)
	cancel()

	if releaseErr := l.Release(context.Background()); releaseErr != nil {
		w.self.logger.Warn("fail to revoke leader lease", zap.Error(releaseErr))
	}
	w.self.logger.Info("stop keeping leader")
	return err
}

func (w *LeaderWatcher) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(WatchLeaderFailInterval):
	}
}
