// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server"
	"github.com/ringmeta/ringmeta/server/bootstrap"
	"github.com/ringmeta/ringmeta/server/config"
	"go.uber.org/zap"
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cfgParser, err := config.MakeNamedConfigParser("staticdht")
	if err != nil {
		fatalf("fail to generate config builder, err:%v", err)
	}

	var (
		dht            bootstrap.StaticDHT
		servers        string
		serverFile     string
		gridConfigDir  string
		gridConfigName string
	)
	fs := cfgParser.FlagSet()
	fs.StringVar(&servers, "servers", "", "comma separated servers")
	fs.StringVar(&serverFile, "server-file", "", "file of servers, one per line")
	fs.IntVar(&dht.ReplicationFactor, "replication", 1, "replication factor")
	fs.StringVar(&gridConfigName, "grid-config", "", "grid config name, GC_<uuid> by default")
	fs.StringVar(&gridConfigDir, "grid-config-dir", ".", "existing directory receiving the grid config")
	fs.IntVar(&dht.Port, "port", 7575, "control port of the dht")
	fs.StringVar(&dht.NSCreationOptions, "ns-options", "", "namespace creation options")
	fs.IntVar(&dht.HeapSizes.Initial, "initial-heap", 1024, "initial heap size of the dht nodes")
	fs.IntVar(&dht.HeapSizes.Max, "max-heap", 1024, "max heap size of the dht nodes")

	cfg, err := cfgParser.Parse(os.Args[1:])
	if coderr.Is(err, coderr.PrintHelpUsage) {
		return
	}
	if err != nil {
		fatalf("fail to parse command line params, err:%v", err)
	}
	if err := cfgParser.ParseConfigFromToml(); err != nil {
		fatalf("fail to parse config from toml file, err:%v", err)
	}
	if err := cfgParser.ParseConfigFromEnv(); err != nil {
		fatalf("fail to parse config from environment variable, err:%v", err)
	}
	if err := cfg.ValidateAndAdjust(); err != nil {
		fatalf("invalid config, err:%v", err)
	}
	if _, err := log.InitGlobalLogger(&cfg.Log); err != nil {
		fatalf("fail to init global logger, err:%v", err)
	}

	if (servers == "") == (serverFile == "") {
		fs.Usage()
		fatalf("exactly one of -servers and -server-file should be provided")
	}
	if servers != "" {
		dht.Servers = bootstrap.ParseServers(servers)
	} else {
		dht.Servers, err = bootstrap.ParseServersFile(serverFile)
		if err != nil {
			fatalf("%v", err)
		}
	}
	// The dht name flag only applies when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dht-name" {
			dht.DHTName = cfg.DHTName
		}
	})
	dht.GridConfigName = gridConfigName

	s, err := server.OpenStorage(cfg)
	if err != nil {
		fatalf("fail to open meta storage, err:%v", err)
	}
	defer s.Close()

	id := uuid.New()
	creator := bootstrap.NewStaticDHTCreator(s, bootstrap.CreatorConfig{
		GridConfigDir: gridConfigDir,
		StoreLocator:  cfg.StoreLocator(),
	})
	res, err := creator.Create(context.Background(), id, dht)
	if err != nil {
		log.Error("fail to create static dht", zap.String("uuid", id.String()), zap.Error(err))
		if step, ok := bootstrap.FailedStep(err); ok {
			fatalf("create static dht failed at step %s, retry with a fresh uuid: %v", step, err)
		}
		fatalf("create static dht failed: %v", err)
	}
	fmt.Println(res.GridConfigName)
}
