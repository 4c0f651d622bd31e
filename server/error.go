// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package server

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrCreateEtcdClient    = coderr.NewCodeError(coderr.Internal, "fail to create etcd client")
	ErrOpenStorage         = coderr.NewCodeError(coderr.Internal, "fail to open meta storage")
	ErrUnknownStoreBackend = coderr.NewCodeError(coderr.InvalidParams, "unknown store backend")
	ErrStartGrpcServer     = coderr.NewCodeError(coderr.Internal, "fail to start grpc server")
	ErrStartHTTPServer     = coderr.NewCodeError(coderr.Internal, "fail to start http server")
	ErrDialRingMaster      = coderr.NewCodeError(coderr.BadGateway, "fail to dial ring master")
)
