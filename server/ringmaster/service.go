// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/grpcservice"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Service serves a Delegate over gRPC.
type Service struct {
	opTimeout time.Duration
	delegate  Delegate
}

func NewService(opTimeout time.Duration, delegate Delegate) *Service {
	return &Service{
		opTimeout: opTimeout,
		delegate:  delegate,
	}
}

// RegisterService registers the service on the server under serviceName.
func RegisterService(s *grpc.Server, serviceName string, svc *Service) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: methodGetDHTConfiguration, Handler: unaryHandler(serviceName, methodGetDHTConfiguration, (*Service).getDHTConfiguration)},
			{MethodName: methodGetMode, Handler: unaryHandler(serviceName, methodGetMode, (*Service).getMode)},
			{MethodName: methodSetMode, Handler: unaryHandler(serviceName, methodSetMode, (*Service).setMode)},
			{MethodName: methodSetTarget, Handler: unaryHandler(serviceName, methodSetTarget, (*Service).setTarget)},
			{MethodName: methodGetStatus, Handler: unaryHandler(serviceName, methodGetStatus, (*Service).getStatus)},
			{MethodName: methodGetCurrentConvergenceID, Handler: unaryHandler(serviceName, methodGetCurrentConvergenceID, (*Service).getCurrentConvergenceID)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "ringmaster",
	}, svc)
}

func unaryHandler[Req any, Resp any](serviceName, method string, call func(*Service, context.Context, *Req) *Resp) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Service)
		handler := func(ctx context.Context, req any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
			defer cancel()
			log.Debug("handle ring master request", zap.String("method", method))
			return call(s, ctx, req.(*Req)), nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *Service) getDHTConfiguration(ctx context.Context, _ *GetDHTConfigurationRequest) *GetDHTConfigurationResponse {
	config, err := s.delegate.GetDHTConfiguration(ctx)
	if err != nil {
		log.Error("fail to get dht configuration", zap.Error(err))
		return &GetDHTConfigurationResponse{Header: grpcservice.ErrHeader(err)}
	}
	return &GetDHTConfigurationResponse{
		Header:    grpcservice.OkHeader(),
		Config:    config,
		Version:   config.Version,
		CreatedAt: config.CreatedAt,
	}
}

func (s *Service) getMode(ctx context.Context, _ *GetModeRequest) *GetModeResponse {
	m, err := s.delegate.GetMode(ctx)
	if err != nil {
		return &GetModeResponse{Header: grpcservice.ErrHeader(err)}
	}
	return &GetModeResponse{Header: grpcservice.OkHeader(), Mode: m.String()}
}

func (s *Service) setMode(ctx context.Context, req *SetModeRequest) *SetModeResponse {
	m, err := mode.Parse(req.Mode)
	if err != nil {
		return &SetModeResponse{Header: grpcservice.ErrHeader(err)}
	}
	if err := s.delegate.SetMode(ctx, m); err != nil {
		return &SetModeResponse{Header: grpcservice.ErrHeader(err)}
	}
	return &SetModeResponse{Header: grpcservice.OkHeader()}
}

func (s *Service) setTarget(ctx context.Context, req *SetTargetRequest) *SetTargetResponse {
	target, err := ring.ParseIdentity(req.Target)
	if err != nil {
		return &SetTargetResponse{Header: grpcservice.ErrHeader(err)}
	}
	id, err := s.delegate.SetTarget(ctx, target)
	if err != nil {
		log.Error("fail to set target", zap.String("target", req.Target), zap.Error(err))
		return &SetTargetResponse{Header: grpcservice.ErrHeader(err)}
	}
	return &SetTargetResponse{Header: grpcservice.OkHeader(), ID: id.String()}
}

func (s *Service) getStatus(ctx context.Context, req *GetStatusRequest) *GetStatusResponse {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return &GetStatusResponse{Header: grpcservice.ErrHeader(ErrInvalidRequestID.WithCausef("id:%q, err:%v", req.ID, err))}
	}
	status, ok, err := s.delegate.GetStatus(ctx, id)
	if err != nil {
		return &GetStatusResponse{Header: grpcservice.ErrHeader(err)}
	}
	return &GetStatusResponse{Header: grpcservice.OkHeader(), Found: ok, Status: status}
}

func (s *Service) getCurrentConvergenceID(ctx context.Context, _ *GetCurrentConvergenceIDRequest) *GetCurrentConvergenceIDResponse {
	id, ok, err := s.delegate.GetCurrentConvergenceID(ctx)
	if err != nil {
		return &GetCurrentConvergenceIDResponse{Header: grpcservice.ErrHeader(err)}
	}
	resp := &GetCurrentConvergenceIDResponse{Header: grpcservice.OkHeader(), Found: ok}
	if ok {
		resp.ID = id.String()
	}
	return resp
}
