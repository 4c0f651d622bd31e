// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package hash

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrEmptyServerSet             = coderr.NewCodeError(coderr.InvalidParams, "empty server set")
	ErrDuplicateServer            = coderr.NewCodeError(coderr.InvalidParams, "duplicate server")
	ErrInvalidReplicationFactor   = coderr.NewCodeError(coderr.InvalidParams, "invalid replication factor")
	ErrInsufficientServers        = coderr.NewCodeError(coderr.InvalidParams, "insufficient servers for replication factor")
	ErrNoRoomForPosition          = coderr.NewCodeError(coderr.Internal, "no room to place ring position")
	ErrInvalidPlacementParameters = coderr.NewCodeError(coderr.InvalidParams, "invalid placement parameters")
)
