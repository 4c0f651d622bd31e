// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package http

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrParseRequest = coderr.NewCodeError(coderr.BadRequest, "parse request params failed")
	ErrFlowLimited  = coderr.NewCodeError(coderr.TooManyRequests, "flow limited")
	ErrNotFound     = coderr.NewCodeError(coderr.NotFound, "not found")
)
