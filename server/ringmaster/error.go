// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
)

var (
	ErrControlPlaneUnreachable = coderr.NewCodeError(coderr.BadGateway, "ring master unreachable")
	ErrTargetRejected          = coderr.NewCodeError(coderr.Conflict, "target rejected in current mode")
	ErrUnknownRequest          = coderr.NewCodeError(coderr.NotFound, "unknown convergence request")
	ErrInvalidTransition       = coderr.NewCodeError(coderr.Conflict, "invalid convergence request transition")
	ErrInvalidRequestID        = coderr.NewCodeError(coderr.InvalidParams, "invalid convergence request id")
	ErrStaleRequest            = coderr.NewCodeError(coderr.Conflict, "convergence request target replaced on the pointer")
)

// knownErrors are rebuilt as themselves on the client side of the RPC channel.
var knownErrors = []coderr.CodeError{
	ErrTargetRejected,
	ErrUnknownRequest,
	ErrInvalidTransition,
	ErrInvalidRequestID,
	ErrStaleRequest,
	ring.ErrInvalidRingIdentity,
	mode.ErrInvalidMode,
	storage.ErrCoordinationUnavailable,
	storage.ErrDHTConfigNotFound,
	storage.ErrCurTargetNotFound,
	storage.ErrRingNotFound,
}
