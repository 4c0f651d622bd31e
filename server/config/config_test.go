// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	re := require.New(t)

	p, err := MakeConfigParser()
	re.NoError(err)
	cfg, err := p.Parse([]string{"-dht-name", "SK.x", "-etcd-endpoints", "a:2379, b:2379", "-poll-interval-sec", "2"})
	re.NoError(err)
	re.NoError(cfg.ValidateAndAdjust())

	re.Equal("SK.x", cfg.DHTName)
	re.Equal([]string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
	re.Equal("a:2379,b:2379", cfg.StoreLocator())
	re.Equal(2*time.Second, cfg.PollInterval())
	re.Equal(5*time.Second, cfg.RequestTimeout())
	re.Equal(StoreBackendEtcd, cfg.StoreBackend)
}

func TestParseHelpAndBadFlags(t *testing.T) {
	re := require.New(t)

	p, err := MakeConfigParser()
	re.NoError(err)
	p.FlagSet().SetOutput(io.Discard)
	_, err = p.Parse([]string{"-h"})
	re.True(coderr.Is(err, coderr.PrintHelpUsage))

	p, err = MakeConfigParser()
	re.NoError(err)
	p.FlagSet().SetOutput(io.Discard)
	_, err = p.Parse([]string{"-no-such-flag"})
	re.ErrorIs(err, ErrInvalidCommandArgs)
}

func TestParseTomlAndEnv(t *testing.T) {
	re := require.New(t)

	path := filepath.Join(t.TempDir(), "ringmeta.toml")
	re.NoError(os.WriteFile(path, []byte(`
dht-name = "SK.toml"
store-backend = "bbolt"
bolt-path = "/var/lib/ringmeta/meta.db"
display-limit = 20

[log]
level = "debug"

[limiter]
enable = false
`), 0o644))

	t.Setenv("RINGMETA_DHT_NAME", "SK.env")
	t.Setenv("RINGMETA_REJECT_WHILE_CONVERGING", "true")
	t.Setenv("RINGMETA_LOG_FILE", "/tmp/ringmeta.log")

	p, err := MakeConfigParser()
	re.NoError(err)
	cfg, err := p.Parse([]string{"-config", path})
	re.NoError(err)
	re.NoError(p.ParseConfigFromToml())
	re.NoError(p.ParseConfigFromEnv())
	re.NoError(cfg.ValidateAndAdjust())

	re.Equal("SK.env", cfg.DHTName)
	re.Equal(StoreBackendBolt, cfg.StoreBackend)
	re.Equal("/var/lib/ringmeta/meta.db", cfg.StoreLocator())
	re.Equal(20, cfg.DisplayLimit)
	re.Equal("debug", cfg.Log.Level)
	re.Equal("/tmp/ringmeta.log", cfg.Log.File)
	re.False(cfg.Limiter.Enable)
	re.True(cfg.RejectWhileConverging)
}

func TestValidateAndAdjust(t *testing.T) {
	re := require.New(t)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.StoreBackend = "zookeeper" },
		func(c *Config) { c.EtcdEndpoints = nil },
		func(c *Config) { c.StoreBackend = StoreBackendBolt; c.BoltPath = "" },
		func(c *Config) { c.DHTName = "" },
		func(c *Config) { c.LocalRingMaster = false; c.RingMasterAddr = "" },
		func(c *Config) { c.RequestTimeoutMs = 0 },
		func(c *Config) { c.PollIntervalSec = -1 },
		func(c *Config) { c.LeaseTTLSec = 0 },
	} {
		cfg := makeDefaultConfig()
		mutate(cfg)
		re.ErrorIs(cfg.ValidateAndAdjust(), ErrInvalidConfig)
	}

	cfg := makeDefaultConfig()
	cfg.StoreBackend = " Memory "
	cfg.DisplayLimit = 0
	cfg.RingMasterService = ""
	cfg.NodeName = ""
	re.NoError(cfg.ValidateAndAdjust())
	re.Equal(StoreBackendMemory, cfg.StoreBackend)
	re.Equal(defaultDisplayLimit, cfg.DisplayLimit)
	re.Equal(defaultRingMasterService, cfg.RingMasterService)
	re.Equal(defaultNodeName, cfg.NodeName)
}
