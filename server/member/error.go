// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package member

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrGrantLease  = coderr.NewCodeError(coderr.Unavailable, "fail to grant lease")
	ErrRevokeLease = coderr.NewCodeError(coderr.Unavailable, "fail to revoke lease")
	ErrCampaign    = coderr.NewCodeError(coderr.Unavailable, "fail to campaign leader")
	ErrGetLeader   = coderr.NewCodeError(coderr.Unavailable, "fail to get leader")
	ErrResetLeader = coderr.NewCodeError(coderr.Unavailable, "fail to reset leader")
	ErrWatchLeader = coderr.NewCodeError(coderr.Unavailable, "fail to watch leader")
)
