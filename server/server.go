// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/config"
	"github.com/ringmeta/ringmeta/server/convergence"
	"github.com/ringmeta/ringmeta/server/limiter"
	"github.com/ringmeta/ringmeta/server/member"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	httpapi "github.com/ringmeta/ringmeta/server/service/http"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// Server runs the convergence controller of one dht instance, its operator
// api and, with a local ring master, the ring master service.
type Server struct {
	cfg *config.Config

	storage    storage.Storage
	local      *ringmaster.Local
	member     *member.Member
	client     *ringmaster.Client
	controller *convergence.Controller
	registry   *registry.Registry

	grpcServer   *grpc.Server
	grpcListener net.Listener
	httpServer   *http.Server
	httpListener net.Listener

	closeOnce sync.Once
	cancel    context.CancelFunc
	eg        *errgroup.Group
}

// CreateServer creates the server instance without starting any services or background jobs.
func CreateServer(cfg *config.Config) (*Server, error) {
	s, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, storage: s}, nil
}

func (srv *Server) Controller() *convergence.Controller {
	return srv.controller
}

func (srv *Server) Registry() *registry.Registry {
	return srv.registry
}

// GrpcAddr and HTTPAddr are the listening addresses, after Run.
func (srv *Server) GrpcAddr() string {
	if srv.grpcListener == nil {
		return ""
	}
	return srv.grpcListener.Addr().String()
}

func (srv *Server) HTTPAddr() string {
	return srv.httpListener.Addr().String()
}

// Run starts the services and the background jobs and returns.
func (srv *Server) Run(ctx context.Context) error {
	var delegate ringmaster.Delegate
	if srv.cfg.LocalRingMaster {
		srv.local = ringmaster.NewLocal(srv.storage, srv.cfg.DHTName, ringmaster.LocalOptions{DriveInterval: srv.cfg.DriveInterval()})
		delegate = srv.local
		if client, ok := etcdClientOf(srv.storage); ok {
			srv.member = member.NewMember(client, srv.cfg.EtcdRootPath, srv.cfg.DHTName, srv.cfg.NodeName, srv.cfg.LeaseTTLSec, srv.cfg.RequestTimeout())
		}

		listener, err := net.Listen("tcp", srv.cfg.GrpcListenAddr)
		if err != nil {
			return ErrStartGrpcServer.WithCausef("addr:%s, err:%v", srv.cfg.GrpcListenAddr, err)
		}
		srv.grpcListener = listener
		srv.grpcServer = grpc.NewServer()
		ringmaster.RegisterService(srv.grpcServer, srv.cfg.RingMasterService, ringmaster.NewService(srv.cfg.RequestTimeout(), srv.local))
	} else {
		client, err := ringmaster.Dial(ctx, srv.cfg.RingMasterAddr, srv.cfg.RingMasterService, srv.cfg.RequestTimeout())
		if err != nil {
			return ErrDialRingMaster.WithCausef("addr:%s, err:%v", srv.cfg.RingMasterAddr, err)
		}
		srv.client = client
		delegate = client
	}

	srv.controller = convergence.NewController(srv.storage, delegate, srv.cfg.DHTName, convergence.Options{
		RejectWhileConverging: srv.cfg.RejectWhileConverging,
	})
	srv.registry = registry.New(srv.storage, srv.cfg.DHTName)

	api := httpapi.NewAPI(srv.controller, srv.registry, limiter.NewFlowLimiter(srv.cfg.Limiter), srv.cfg.PollInterval(), srv.cfg.DisplayLimit)
	listener, err := net.Listen("tcp", srv.cfg.HTTPListenAddr)
	if err != nil {
		return ErrStartHTTPServer.WithCausef("addr:%s, err:%v", srv.cfg.HTTPListenAddr, err)
	}
	srv.httpListener = listener
	srv.httpServer = &http.Server{
		Handler:           api.NewAPIRouter(),
		ReadHeaderTimeout: srv.cfg.RequestTimeout(),
	}

	ctx, srv.cancel = context.WithCancel(ctx)
	srv.eg, ctx = errgroup.WithContext(ctx)
	srv.startBackgroundJobs(ctx)

	log.Info("server started", zap.String("dht", srv.cfg.DHTName), zap.String("http", srv.HTTPAddr()),
		zap.String("grpc", srv.GrpcAddr()), zap.Bool("localRingMaster", srv.cfg.LocalRingMaster))
	return nil
}

func (srv *Server) startBackgroundJobs(ctx context.Context) {
	if srv.local != nil {
		srv.eg.Go(func() error {
			// Servers sharing an etcd elect the one that drives convergences.
			if srv.member != nil {
				return member.NewLeaderWatcher(srv.member, srv.local.Run).Watch(ctx)
			}
			return srv.local.Run(ctx)
		})
		srv.eg.Go(func() error {
			return srv.grpcServer.Serve(srv.grpcListener)
		})
	}
	srv.eg.Go(func() error {
		if err := srv.httpServer.Serve(srv.httpListener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	srv.eg.Go(func() error {
		srv.watchCurTarget(ctx)
		return nil
	})
}

// watchCurTarget logs every change of the pointer. Nothing depends on it,
// readers always poll.
func (srv *Server) watchCurTarget(ctx context.Context) {
	err := srv.storage.WatchCurTarget(ctx, srv.cfg.DHTName, func(version int64) {
		pointer, err := srv.storage.GetCurTarget(ctx, srv.cfg.DHTName)
		if err != nil {
			log.Warn("fail to read cur target pointer on change", zap.Int64("version", version), zap.Error(err))
			return
		}
		log.Info("cur target pointer changed", zap.Int64("version", version),
			zap.String("current", pointer.Current.String()), zap.String("target", pointer.Target.String()))
	})
	if err != nil && ctx.Err() == nil {
		log.Warn("cur target watch stopped", zap.Error(err))
	}
}

// Close stops the services and waits for the background jobs.
func (srv *Server) Close() {
	srv.closeOnce.Do(func() {
		if srv.cancel != nil {
			srv.cancel()
		}
		if srv.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := srv.httpServer.Shutdown(ctx); err != nil {
				log.Warn("fail to shutdown http server", zap.Error(err))
			}
			cancel()
		}
		if srv.grpcServer != nil {
			srv.grpcServer.GracefulStop()
		}
		if srv.eg != nil {
			if err := srv.eg.Wait(); err != nil {
				log.Error("background job failed", zap.Error(err))
			}
		}
		if srv.client != nil {
			if err := srv.client.Close(); err != nil {
				log.Warn("fail to close ring master client", zap.Error(err))
			}
		}
		if err := srv.storage.Close(); err != nil {
			log.Warn("fail to close meta storage", zap.Error(err))
		}
		log.Info("server closed")
	})
}
