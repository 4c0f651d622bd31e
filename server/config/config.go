// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	StoreBackendEtcd   = "etcd"
	StoreBackendBolt   = "bbolt"
	StoreBackendMemory = "memory"

	EnvPrefix = "RINGMETA"

	defaultDHTName               = "SK.default"
	defaultStoreBackend          = StoreBackendEtcd
	defaultEtcdEndpoint          = "127.0.0.1:2379"
	defaultEtcdRootPath          = "/ringmeta"
	defaultBoltPath              = "/tmp/ringmeta/meta.db"
	defaultRequestTimeoutMs      = 5000
	defaultRingMasterAddr        = "127.0.0.1:7576"
	defaultRingMasterService     = "ringmeta.RingMaster"
	defaultLocalRingMaster       = true
	defaultDriveIntervalMs       = 1000
	defaultGrpcListenAddr        = "0.0.0.0:7576"
	defaultHTTPListenAddr        = "0.0.0.0:7577"
	defaultPollIntervalSec       = 1
	defaultDisplayLimit          = 10
	defaultRejectWhileConverging = false
	defaultNodeName              = "ringmeta0"
	defaultLeaseTTLSec           = 10

	defaultEnableLimiter                 = true
	defaultTokenBucketFillRate           = 100
	defaultTokenBucketBurstEventCapacity = 1000
)

type LimiterConfig struct {
	// Enable is used to control the switch of the limiter.
	Enable bool `toml:"enable"`
	// TokenBucketFillRate is the rate of tokens filled in the bucket per second.
	TokenBucketFillRate int `toml:"token-bucket-fill-rate"`
	// TokenBucketBurstEventCapacity is the capacity of the bucket.
	TokenBucketBurstEventCapacity int `toml:"token-bucket-burst-event-capacity"`
	// UnLimitList contains the methods that are never limited.
	UnLimitList []string `toml:"unlimit-list"`
}

type Config struct {
	Log     log.Config    `toml:"log"`
	Limiter LimiterConfig `toml:"limiter"`

	DHTName string `toml:"dht-name"`

	StoreBackend  string   `toml:"store-backend"`
	EtcdEndpoints []string `toml:"etcd-endpoints"`
	EtcdRootPath  string   `toml:"etcd-root-path"`
	BoltPath      string   `toml:"bolt-path"`

	RequestTimeoutMs int64 `toml:"request-timeout-ms"`

	// LocalRingMaster serves an in-process ring master on GrpcListenAddr
	// instead of reaching the one at RingMasterAddr.
	LocalRingMaster   bool   `toml:"local-ringmaster"`
	RingMasterAddr    string `toml:"ringmaster-addr"`
	RingMasterService string `toml:"ringmaster-service"`
	DriveIntervalMs   int64  `toml:"drive-interval-ms"`
	// NodeName and LeaseTTLSec identify this server in the election of the
	// ring master driver, held in etcd.
	NodeName    string `toml:"node-name"`
	LeaseTTLSec int64  `toml:"lease-ttl-sec"`

	GrpcListenAddr string `toml:"grpc-listen-addr"`
	HTTPListenAddr string `toml:"http-listen-addr"`

	PollIntervalSec       int  `toml:"poll-interval-sec"`
	DisplayLimit          int  `toml:"display-limit"`
	RejectWhileConverging bool `toml:"reject-while-converging"`
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) DriveInterval() time.Duration {
	return time.Duration(c.DriveIntervalMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// StoreLocator is how clients find the coordination store.
func (c *Config) StoreLocator() string {
	switch c.StoreBackend {
	case StoreBackendEtcd:
		return strings.Join(c.EtcdEndpoints, ",")
	case StoreBackendBolt:
		return c.BoltPath
	}
	return c.StoreBackend
}

// ValidateAndAdjust validates the config fields and adjusts some fields which should be adjusted.
func (c *Config) ValidateAndAdjust() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreBackendEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return ErrInvalidConfig.WithCausef("etcd backend without endpoints")
		}
	case StoreBackendBolt:
		if len(c.BoltPath) == 0 {
			return ErrInvalidConfig.WithCausef("bbolt backend without path")
		}
	case StoreBackendMemory:
	default:
		return ErrInvalidConfig.WithCausef("unknown store backend:%s", c.StoreBackend)
	}

	if len(c.DHTName) == 0 {
		return ErrInvalidConfig.WithCausef("empty dht name")
	}
	if !c.LocalRingMaster && len(c.RingMasterAddr) == 0 {
		return ErrInvalidConfig.WithCausef("no ring master address")
	}
	if c.RequestTimeoutMs <= 0 {
		return ErrInvalidConfig.WithCausef("request timeout:%dms", c.RequestTimeoutMs)
	}
	if c.PollIntervalSec <= 0 {
		return ErrInvalidConfig.WithCausef("poll interval:%ds", c.PollIntervalSec)
	}
	if c.DisplayLimit <= 0 {
		c.DisplayLimit = defaultDisplayLimit
	}
	if len(c.RingMasterService) == 0 {
		c.RingMasterService = defaultRingMasterService
	}
	if len(c.NodeName) == 0 {
		c.NodeName = defaultNodeName
	}
	if c.LeaseTTLSec <= 0 {
		return ErrInvalidConfig.WithCausef("lease ttl:%ds", c.LeaseTTLSec)
	}
	return nil
}

// Parser builds the config from the command line, then the toml file, then
// the environment, each one overriding the previous.
type Parser struct {
	flagSet        *flag.FlagSet
	cfg            *Config
	configFilePath string
	etcdEndpoints  string
}

func makeDefaultConfig() *Config {
	return &Config{
		Log: log.Config{
			Level: log.DefaultLogLevel,
			File:  log.DefaultLogFile,
		},
		Limiter: LimiterConfig{
			Enable:                        defaultEnableLimiter,
			TokenBucketFillRate:           defaultTokenBucketFillRate,
			TokenBucketBurstEventCapacity: defaultTokenBucketBurstEventCapacity,
		},
		DHTName:               defaultDHTName,
		StoreBackend:          defaultStoreBackend,
		EtcdEndpoints:         []string{defaultEtcdEndpoint},
		EtcdRootPath:          defaultEtcdRootPath,
		BoltPath:              defaultBoltPath,
		RequestTimeoutMs:      defaultRequestTimeoutMs,
		LocalRingMaster:       defaultLocalRingMaster,
		RingMasterAddr:        defaultRingMasterAddr,
		RingMasterService:     defaultRingMasterService,
		DriveIntervalMs:       defaultDriveIntervalMs,
		NodeName:              defaultNodeName,
		LeaseTTLSec:           defaultLeaseTTLSec,
		GrpcListenAddr:        defaultGrpcListenAddr,
		HTTPListenAddr:        defaultHTTPListenAddr,
		PollIntervalSec:       defaultPollIntervalSec,
		DisplayLimit:          defaultDisplayLimit,
		RejectWhileConverging: defaultRejectWhileConverging,
	}
}

func MakeConfigParser() (*Parser, error) {
	return MakeNamedConfigParser("ringmeta")
}

// MakeNamedConfigParser makes a parser whose flag set is named name. More
// flags can be defined on FlagSet before Parse.
func MakeNamedConfigParser(name string) (*Parser, error) {
	fs, cfg := flag.NewFlagSet(name, flag.ContinueOnError), makeDefaultConfig()
	builder := &Parser{
		flagSet: fs,
		cfg:     cfg,
	}

	fs.StringVar(&builder.configFilePath, "config", "", "config file path")
	fs.StringVar(&cfg.Log.Level, "log-level", log.DefaultLogLevel, "log level")
	fs.StringVar(&cfg.Log.File, "log-file", log.DefaultLogFile, "log file")
	fs.StringVar(&cfg.DHTName, "dht-name", defaultDHTName, "name of the dht instance")
	fs.StringVar(&cfg.StoreBackend, "store-backend", defaultStoreBackend, "coordination store backend: etcd, bbolt or memory")
	fs.StringVar(&builder.etcdEndpoints, "etcd-endpoints", defaultEtcdEndpoint, "comma separated etcd endpoints")
	fs.StringVar(&cfg.EtcdRootPath, "etcd-root-path", defaultEtcdRootPath, "root path of the keys in etcd")
	fs.StringVar(&cfg.BoltPath, "bolt-path", defaultBoltPath, "path of the bbolt file")
	fs.Int64Var(&cfg.RequestTimeoutMs, "request-timeout-ms", defaultRequestTimeoutMs, "timeout of a store or ring master request")
	fs.BoolVar(&cfg.LocalRingMaster, "local-ringmaster", defaultLocalRingMaster, "serve an in-process ring master")
	fs.StringVar(&cfg.RingMasterAddr, "ringmaster-addr", defaultRingMasterAddr, "address of the ring master")
	fs.StringVar(&cfg.RingMasterService, "ringmaster-service", defaultRingMasterService, "service name of the ring master")
	fs.Int64Var(&cfg.DriveIntervalMs, "drive-interval-ms", defaultDriveIntervalMs, "step interval of the in-process ring master, 0 to only advance by hand")
	fs.StringVar(&cfg.NodeName, "node-name", defaultNodeName, "name of this server in the ring master election")
	fs.Int64Var(&cfg.LeaseTTLSec, "lease-ttl-sec", defaultLeaseTTLSec, "ttl of the ring master leader lease")
	fs.StringVar(&cfg.GrpcListenAddr, "grpc-listen-addr", defaultGrpcListenAddr, "listen address of the ring master service")
	fs.StringVar(&cfg.HTTPListenAddr, "http-listen-addr", defaultHTTPListenAddr, "listen address of the operator api")
	fs.IntVar(&cfg.PollIntervalSec, "poll-interval-sec", defaultPollIntervalSec, "poll interval while waiting for a convergence")
	fs.IntVar(&cfg.DisplayLimit, "display-limit", defaultDisplayLimit, "number of recent rings displayed")
	fs.BoolVar(&cfg.RejectWhileConverging, "reject-while-converging", defaultRejectWhileConverging, "reject a new target while a convergence is in flight")

	return builder, nil
}

func (p *Parser) FlagSet() *flag.FlagSet {
	return p.flagSet
}

func (p *Parser) Parse(arguments []string) (*Config, error) {
	if err := p.flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return nil, ErrHelpRequested.WithCause(err)
		}
		return nil, ErrInvalidCommandArgs.WithCausef("fail to parse flag arguments:%v, err:%v", arguments, err)
	}
	p.cfg.EtcdEndpoints = splitList(p.etcdEndpoints)
	return p.cfg, nil
}

func (p *Parser) ParseConfigFromToml() error {
	if p.configFilePath == "" {
		log.Info("no config file specified, skip parse config from toml")
		return nil
	}

	b, err := os.ReadFile(p.configFilePath)
	if err != nil {
		log.Error("err", zap.Error(err))
		return ErrReadConfigFile.WithCausef("path:%s, err:%v", p.configFilePath, err)
	}

	if err := toml.Unmarshal(b, p.cfg); err != nil {
		return ErrInvalidConfig.WithCausef("path:%s, err:%v", p.configFilePath, err)
	}
	return nil
}

// ParseConfigFromEnv overrides the config with RINGMETA_* variables, e.g.
// RINGMETA_STORE_BACKEND for store-backend or RINGMETA_LOG_LEVEL for the
// level of the log section.
func (p *Parser) ParseConfigFromEnv() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := p.cfg
	overrideString(v, "log.level", &cfg.Log.Level)
	overrideString(v, "log.file", &cfg.Log.File)
	overrideBool(v, "limiter.enable", &cfg.Limiter.Enable)
	overrideInt(v, "limiter.token-bucket-fill-rate", &cfg.Limiter.TokenBucketFillRate)
	overrideInt(v, "limiter.token-bucket-burst-event-capacity", &cfg.Limiter.TokenBucketBurstEventCapacity)
	overrideString(v, "dht-name", &cfg.DHTName)
	overrideString(v, "store-backend", &cfg.StoreBackend)
	if v.IsSet("etcd-endpoints") {
		cfg.EtcdEndpoints = splitList(v.GetString("etcd-endpoints"))
	}
	overrideString(v, "etcd-root-path", &cfg.EtcdRootPath)
	overrideString(v, "bolt-path", &cfg.BoltPath)
	overrideInt64(v, "request-timeout-ms", &cfg.RequestTimeoutMs)
	overrideBool(v, "local-ringmaster", &cfg.LocalRingMaster)
	overrideString(v, "ringmaster-addr", &cfg.RingMasterAddr)
	overrideString(v, "ringmaster-service", &cfg.RingMasterService)
	overrideInt64(v, "drive-interval-ms", &cfg.DriveIntervalMs)
	overrideString(v, "node-name", &cfg.NodeName)
	overrideInt64(v, "lease-ttl-sec", &cfg.LeaseTTLSec)
	overrideString(v, "grpc-listen-addr", &cfg.GrpcListenAddr)
	overrideString(v, "http-listen-addr", &cfg.HTTPListenAddr)
	overrideInt(v, "poll-interval-sec", &cfg.PollIntervalSec)
	overrideInt(v, "display-limit", &cfg.DisplayLimit)
	overrideBool(v, "reject-while-converging", &cfg.RejectWhileConverging)
	return nil
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func overrideBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func overrideInt64(v *viper.Viper, key string, dst *int64) {
	if v.IsSet(key) {
		*dst = v.GetInt64(key)
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
