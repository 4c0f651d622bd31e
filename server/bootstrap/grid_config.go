// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package bootstrap

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

const (
	GridConfigSuffix = ".env"

	EnvDHTName  = "SK_DHT_NAME"
	EnvPort     = "SK_PORT"
	EnvStoreLoc = "SK_ZK_LOC"
)

// GridConfig is the descriptor clients bootstrap from: the environment of a
// dht instance keyed by its grid config name.
type GridConfig struct {
	Name     string
	DHTName  string
	Port     int
	StoreLoc string
}

func (c GridConfig) Env() map[string]string {
	return map[string]string{
		EnvDHTName:  c.DHTName,
		EnvPort:     strconv.Itoa(c.Port),
		EnvStoreLoc: c.StoreLoc,
	}
}

// GridConfigPath is the path of the descriptor named name under dir.
func GridConfigPath(dir, name string) string {
	return filepath.Join(dir, name+GridConfigSuffix)
}

// WriteGridConfig writes the descriptor as an env file under dir and returns
// its path. The dir must exist.
func WriteGridConfig(dir string, c GridConfig) (string, error) {
	if err := checkGridConfigDir(dir); err != nil {
		return "", err
	}

	v := viper.New()
	for key, value := range c.Env() {
		v.Set(key, value)
	}
	path := GridConfigPath(dir, c.Name)
	if err := v.WriteConfigAs(path); err != nil {
		return "", ErrWriteGridConfig.WithCausef("path:%s, err:%v", path, err)
	}
	return path, nil
}

// ReadGridConfig reads the descriptor named name under dir.
func ReadGridConfig(dir, name string) (GridConfig, error) {
	path := GridConfigPath(dir, name)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return GridConfig{}, ErrReadGridConfig.WithCausef("path:%s, err:%v", path, err)
	}

	port, err := strconv.Atoi(v.GetString(EnvPort))
	if err != nil {
		return GridConfig{}, ErrReadGridConfig.WithCausef("path:%s, port:%q", path, v.GetString(EnvPort))
	}
	return GridConfig{
		Name:     name,
		DHTName:  v.GetString(EnvDHTName),
		Port:     port,
		StoreLoc: v.GetString(EnvStoreLoc),
	}, nil
}

func checkGridConfigDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ErrGridConfigDirMissing.WithCausef("dir:%s", dir)
	}
	return nil
}
