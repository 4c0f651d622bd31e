// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrCoordinationUnavailable = coderr.NewCodeError(coderr.Unavailable, "coordination store unavailable")
	ErrNodeNotFound            = coderr.NewCodeError(coderr.NotFound, "node not found")
	ErrVersionConflict         = coderr.NewCodeError(coderr.Conflict, "node version conflict")
	ErrInvalidPath             = coderr.NewCodeError(coderr.InvalidParams, "invalid node path")
	ErrEncode                  = coderr.NewCodeError(coderr.Internal, "storage encode")
	ErrDecode                  = coderr.NewCodeError(coderr.Internal, "storage decode")

	ErrRingAlreadyExists = coderr.NewCodeError(coderr.Conflict, "ring already exists")
	ErrRingNotFound      = coderr.NewCodeError(coderr.NotFound, "ring not found")
	ErrClassVarsNotFound = coderr.NewCodeError(coderr.NotFound, "class vars not found")
	ErrDHTConfigNotFound = coderr.NewCodeError(coderr.NotFound, "dht configuration not found")
	ErrCurTargetNotFound = coderr.NewCodeError(coderr.NotFound, "cur target pointer not found")
)
