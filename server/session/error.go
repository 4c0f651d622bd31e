// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package session

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrUnknownAction    = coderr.NewCodeError(coderr.InvalidParams, "unknown action")
	ErrInvalidArguments = coderr.NewCodeError(coderr.InvalidParams, "invalid arguments")
	ErrInvalidRequestID = coderr.NewCodeError(coderr.InvalidParams, "invalid request id")
)
