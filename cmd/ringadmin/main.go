// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server"
	"github.com/ringmeta/ringmeta/server/config"
	"github.com/ringmeta/ringmeta/server/convergence"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/ringmeta/ringmeta/server/session"
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cfgParser, err := config.MakeNamedConfigParser("ringadmin")
	if err != nil {
		fatalf("fail to generate config builder, err:%v", err)
	}
	var (
		commands    string
		commandFile string
	)
	fs := cfgParser.FlagSet()
	fs.StringVar(&commands, "commands", "", "; separated commands to run instead of reading stdin")
	fs.StringVar(&commandFile, "command-file", "", "file of ; separated commands to run instead of reading stdin")

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
	// The admin always reaches a running ring master.
	cfg.LocalRingMaster = false
	if err := cfg.ValidateAndAdjust(); err != nil {
		fatalf("invalid config, err:%v", err)
	}
	if _, err := log.InitGlobalLogger(&cfg.Log); err != nil {
		fatalf("fail to init global logger, err:%v", err)
	}

	ctx := context.Background()
	s, err := server.OpenStorage(cfg)
	if err != nil {
		fatalf("fail to open meta storage, err:%v", err)
	}
	defer s.Close()
	client, err := ringmaster.Dial(ctx, cfg.RingMasterAddr, cfg.RingMasterService, cfg.RequestTimeout())
	if err != nil {
		fatalf("fail to dial ring master, err:%v", err)
	}
	defer client.Close()

	controller := convergence.NewController(s, client, cfg.DHTName, convergence.Options{RejectWhileConverging: cfg.RejectWhileConverging})
	sess := session.New(controller, registry.New(s, cfg.DHTName), os.Stdout, session.Config{
		DisplayLimit: cfg.DisplayLimit,
		PollInterval: cfg.PollInterval(),
	})

	if commands == "" && commandFile == "" {
		runLoop(ctx, sess)
		return
	}
	if commandFile != "" {
		b, err := os.ReadFile(commandFile)
		if err != nil {
			fatalf("fail to read command file, err:%v", err)
		}
		if err := sess.RunScript(ctx, string(b)); err != nil {
			fatalf("%v", err)
		}
	}
	if commands != "" && !sess.Done() {
		if err := sess.RunScript(ctx, commands); err != nil {
			fatalf("%v", err)
		}
	}
}

// runLoop reads commands from stdin, each terminated by ;.
func runLoop(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	var cmd strings.Builder
	fmt.Print(session.Prompt)
	for !sess.Done() && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd.WriteString(" ")
		cmd.WriteString(line)
		if !strings.HasSuffix(line, session.Terminator) {
			fmt.Print("> ")
			continue
		}
		command := strings.TrimSuffix(strings.TrimSpace(cmd.String()), session.Terminator)
		cmd.Reset()
		if err := sess.Exec(ctx, command); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if !sess.Done() {
			fmt.Print(session.Prompt)
		}
	}
}
