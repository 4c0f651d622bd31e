// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultLogger   *zap.Logger
	globalLoggerCfg *zap.Config
)

func init() {
	cfg := &Config{
		Level: DefaultLogLevel,
		File:  DefaultLogFile,
	}
	_, err := InitGlobalLogger(cfg)
	if err != nil {
		panic("fail to init global logger")
	}
}

// InitGlobalLogger initializes the global logger with Config.
func InitGlobalLogger(cfg *Config) (*zap.Logger, error) {
	zapCfg := DefaultZapLoggerConfig

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.File) > 0 {
		zapCfg.OutputPaths = []string{cfg.File}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	defaultLogger = logger
	globalLoggerCfg = &zapCfg
	return logger, nil
}

func GetLogger() *zap.Logger {
	return defaultLogger
}

// ReplaceGlobalLogger swaps the global logger, e.g. with zaptest loggers in tests.
func ReplaceGlobalLogger(logger *zap.Logger) {
	defaultLogger = logger
}
