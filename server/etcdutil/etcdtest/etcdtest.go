// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

// Package etcdtest starts an embedded etcd for tests, only _test.go files import it.
package etcdtest

import (
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

type CloseFn = func()

// NewTestSingleConfig is used to create an etcd config for the unit test purpose.
func NewTestSingleConfig(t *testing.T) *embed.Config {
	cfg := embed.NewConfig()
	cfg.Name = "test_etcd"
	cfg.Dir = t.TempDir()
	cfg.WalDir = ""
	cfg.Logger = "zap"
	cfg.LogLevel = "error"
	cfg.LogOutputs = []string{"stdout"}

	pu, err := url.Parse(allocURL(t))
	require.NoError(t, err)
	cfg.ListenPeerUrls = []url.URL{*pu}
	cfg.AdvertisePeerUrls = cfg.ListenPeerUrls
	cu, err := url.Parse(allocURL(t))
	require.NoError(t, err)
	cfg.ListenClientUrls = []url.URL{*cu}
	cfg.AdvertiseClientUrls = cfg.ListenClientUrls

	cfg.StrictReconfigCheck = false
	cfg.InitialCluster = fmt.Sprintf("%s=%s", cfg.Name, &cfg.ListenPeerUrls[0])
	cfg.ClusterState = embed.ClusterStateFlagNew
	return cfg
}

func allocURL(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

// PrepareEtcdServerAndClient makes the server and client for testing.
//
// Caller should take responsibilities to close the server and client.
func PrepareEtcdServerAndClient(t *testing.T) (*embed.Etcd, *clientv3.Client, CloseFn) {
	cfg := NewTestSingleConfig(t)
	etcd, err := embed.StartEtcd(cfg)
	require.NoError(t, err)

	select {
	case <-etcd.Server.ReadyNotify():
	case <-time.After(30 * time.Second):
		etcd.Close()
		t.Fatal("embedded etcd is not ready in time")
	}

	endpoint := cfg.ListenClientUrls[0].String()
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	closeSrv := func() {
		_ = client.Close()
		etcd.Close()
	}
	return etcd, client, closeSrv
}
