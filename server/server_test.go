// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/server/bootstrap"
	"github.com/ringmeta/ringmeta/server/config"
	"github.com/ringmeta/ringmeta/server/etcdutil/etcdtest"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	re := require.New(t)

	p, err := config.MakeConfigParser()
	re.NoError(err)
	cfg, err := p.Parse([]string{
		"-store-backend", "memory",
		"-grpc-listen-addr", "127.0.0.1:0",
		"-http-listen-addr", "127.0.0.1:0",
		"-drive-interval-ms", "5",
	})
	re.NoError(err)
	re.NoError(cfg.ValidateAndAdjust())
	return cfg
}

func TestServerLocalRingMaster(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	cfg := newTestConfig(t)
	id := uuid.New()
	cfg.DHTName = bootstrap.DefaultDHTName(id)
	srv, err := CreateServer(cfg)
	re.NoError(err)

	creator := bootstrap.NewStaticDHTCreator(srv.storage, bootstrap.CreatorConfig{GridConfigDir: t.TempDir(), StoreLocator: cfg.StoreLocator()})
	res, err := creator.Create(ctx, id, bootstrap.StaticDHT{Servers: []string{"a", "b", "c"}, ReplicationFactor: 2, Port: 7575})
	re.NoError(err)
	next := ring.NewIdentity(res.RingName, 0, 1)
	_, err = srv.storage.CreateRingTopology(ctx, ring.Topology{Identity: next, HostGroup: res.Placement.HostGroup})
	re.NoError(err)

	re.NoError(srv.Run(ctx))
	defer srv.Close()

	// The ring master is reachable over the rpc channel.
	client, err := ringmaster.Dial(ctx, srv.GrpcAddr(), cfg.RingMasterService, time.Second)
	re.NoError(err)
	defer client.Close()
	dhtConfig, err := client.GetDHTConfiguration(ctx)
	re.NoError(err)
	re.Equal(res.RingName, dhtConfig.RingName)

	requestID, err := srv.Controller().SetTarget(ctx, next)
	re.NoError(err)
	status, err := srv.Controller().AwaitCompletion(ctx, requestID, time.Millisecond, nil)
	re.NoError(err)
	re.True(status.Succeeded())

	resp, err := http.Get("http://" + srv.HTTPAddr() + "/api/v1/pointer")
	re.NoError(err)
	defer resp.Body.Close()
	re.Equal(http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			Current string `json:"current"`
			Target  string `json:"target"`
		} `json:"data"`
	}
	re.NoError(json.NewDecoder(resp.Body).Decode(&body))
	re.Equal(next.String(), body.Data.Current)
	re.Equal(next.String(), body.Data.Target)
}

func TestServerRemoteRingMaster(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	cfg := newTestConfig(t)
	master, err := CreateServer(cfg)
	re.NoError(err)
	re.NoError(master.Run(ctx))
	defer master.Close()

	remoteCfg := newTestConfig(t)
	remoteCfg.LocalRingMaster = false
	remoteCfg.RingMasterAddr = master.GrpcAddr()
	remote, err := CreateServer(remoteCfg)
	re.NoError(err)
	re.NoError(remote.Run(ctx))
	defer remote.Close()

	re.Empty(remote.GrpcAddr())
	re.NoError(remote.Controller().SetModeString(ctx, "Manual"))
	m, err := master.Controller().GetMode(ctx)
	re.NoError(err)
	re.Equal("Manual", m.String())

	_, ok, err := remote.Controller().GetCurrentConvergenceID(ctx)
	re.NoError(err)
	re.False(ok)
}

func TestServerEtcdElectedDriver(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	etcd, _, closeSrv := etcdtest.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	cfg := newTestConfig(t)
	cfg.StoreBackend = config.StoreBackendEtcd
	cfg.EtcdEndpoints = []string{etcd.Config().ListenClientUrls[0].String()}
	cfg.LeaseTTLSec = 2
	id := uuid.New()
	cfg.DHTName = bootstrap.DefaultDHTName(id)
	srv, err := CreateServer(cfg)
	re.NoError(err)

	creator := bootstrap.NewStaticDHTCreator(srv.storage, bootstrap.CreatorConfig{GridConfigDir: t.TempDir(), StoreLocator: cfg.StoreLocator()})
	res, err := creator.Create(ctx, id, bootstrap.StaticDHT{Servers: []string{"a", "b"}, ReplicationFactor: 1, Port: 7575})
	re.NoError(err)
	next := ring.NewIdentity(res.RingName, 0, 1)
	_, err = srv.storage.CreateRingTopology(ctx, ring.Topology{Identity: next, HostGroup: res.Placement.HostGroup})
	re.NoError(err)

	re.NoError(srv.Run(ctx))
	defer srv.Close()
	re.NotNil(srv.member)

	requestID, err := srv.Controller().SetTarget(ctx, next)
	re.NoError(err)
	status, err := srv.Controller().AwaitCompletion(ctx, requestID, 10*time.Millisecond, nil)
	re.NoError(err)
	re.True(status.Succeeded())

	leader, err := srv.member.GetLeader(ctx)
	re.NoError(err)
	re.Equal(cfg.NodeName, leader)
}

func TestOpenStorageUnknownBackend(t *testing.T) {
	re := require.New(t)

	cfg := newTestConfig(t)
	cfg.StoreBackend = "zookeeper"
	_, err := OpenStorage(cfg)
	re.ErrorIs(err, ErrUnknownStoreBackend)
}
