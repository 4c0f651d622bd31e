// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package convergence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"go.uber.org/zap"
)

// StatusGetter reads the status of a convergence request.
type StatusGetter interface {
	GetStatus(ctx context.Context, id uuid.UUID) (ringmaster.RequestStatus, bool, error)
}

// AwaitCompletion sleeps and polls the status of the request every
// pollInterval, calling onChange whenever the status differs from the
// previous poll, until the request completes or ctx is done.
//
// A failed poll is logged and retried. A request unknown on the first
// successful poll fails with ringmaster.ErrUnknownRequest, one vanishing
// after being seen fails with ErrRequestGone.
func AwaitCompletion(ctx context.Context, getter StatusGetter, id uuid.UUID, pollInterval time.Duration, onChange func(ringmaster.RequestStatus)) (ringmaster.RequestStatus, error) {
	var (
		last ringmaster.RequestStatus
		seen bool
	)

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		status, ok, err := getter.GetStatus(ctx, id)
		switch {
		case err != nil:
			log.Warn("fail to poll convergence status, retry", zap.String("request", id.String()), zap.Error(err))
		case !ok && !seen:
			return last, ringmaster.ErrUnknownRequest.WithCausef("id:%s", id)
		case !ok:
			return last, ErrRequestGone.WithCausef("id:%s, last state:%s", id, last.State)
		default:
			if !seen || !status.Equal(last) {
				if onChange != nil {
					onChange(status)
				}
			}
			last, seen = status, true
			if status.RequestComplete() {
				return status, nil
			}
		}
		timer.Reset(pollInterval)
	}
}

// AwaitCompletion waits for the request through the controller.
func (c *Controller) AwaitCompletion(ctx context.Context, id uuid.UUID, pollInterval time.Duration, onChange func(ringmaster.RequestStatus)) (ringmaster.RequestStatus, error) {
	return AwaitCompletion(ctx, c, id, pollInterval, onChange)
}
