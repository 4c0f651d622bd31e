// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package grpcservice

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrParseURL  = coderr.NewCodeError(coderr.InvalidParams, "parse url")
	ErrGRPCDial  = coderr.NewCodeError(coderr.BadGateway, "grpc dial")
	ErrJSONCodec = coderr.NewCodeError(coderr.Internal, "json codec")
)
