// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package config

import "github.com/ringmeta/ringmeta/pkg/coderr"

var (
	ErrHelpRequested      = coderr.NewCodeError(coderr.PrintHelpUsage, "help requested")
	ErrInvalidCommandArgs = coderr.NewCodeError(coderr.InvalidParams, "invalid command arguments")
	ErrInvalidConfig      = coderr.NewCodeError(coderr.InvalidParams, "invalid config")
	ErrReadConfigFile     = coderr.NewCodeError(coderr.Internal, "fail to read config file")
)
