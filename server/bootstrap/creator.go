// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package bootstrap

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/hash"
	"github.com/ringmeta/ringmeta/server/metrics"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
)

const (
	dhtNamePrefix       = "SK."
	ringNamePrefix      = "ring."
	gridConfigPrefix    = "GC_"
	classVarsNamePrefix = "classVars."
	hostGroupPrefix     = "hostGroup."

	ClassVarInitialHeapSize = "initialHeapSize"
	ClassVarMaxHeapSize     = "maxHeapSize"
)

func DefaultDHTName(id uuid.UUID) string        { return dhtNamePrefix + id.String() }
func DefaultGridConfigName(id uuid.UUID) string { return gridConfigPrefix + id.String() }
func RingName(id uuid.UUID) string              { return ringNamePrefix + id.String() }
func ClassVarsName(id uuid.UUID) string         { return classVarsNamePrefix + id.String() }
func HostGroupName(id uuid.UUID) string         { return hostGroupPrefix + id.String() }

type HeapSizes struct {
	Initial int
	Max     int
}

// StaticDHT describes a dht whose ring topology never changes after creation.
type StaticDHT struct {
	Servers           []string
	ReplicationFactor int
	// DHTName defaults to SK.<uuid>.
	DHTName string
	// GridConfigName defaults to GC_<uuid>.
	GridConfigName    string
	Port              int
	NSCreationOptions string
	HeapSizes         HeapSizes
}

// Result is what a successful creation produced.
type Result struct {
	DHTName        string
	RingName       string
	GridConfigName string
	GridConfigPath string
	Placement      *hash.Placement
	Config         storage.DHTConfiguration
}

type CreatorConfig struct {
	// GridConfigDir receives the grid config descriptor, it must exist.
	GridConfigDir string
	// StoreLocator tells clients where the coordination store is.
	StoreLocator string
	Placement    hash.Config
}

// StaticDHTCreator creates static dhts in the meta storage.
type StaticDHTCreator struct {
	storage storage.MetaStorage
	cfg     CreatorConfig
}

func NewStaticDHTCreator(storage storage.MetaStorage, cfg CreatorConfig) *StaticDHTCreator {
	return &StaticDHTCreator{storage: storage, cfg: cfg}
}

func (d StaticDHT) validate() error {
	if len(d.Servers) == 0 {
		return ErrInvalidOptions.WithCausef("no servers")
	}
	if d.ReplicationFactor <= 0 {
		return ErrInvalidOptions.WithCausef("replication factor:%d", d.ReplicationFactor)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return ErrInvalidOptions.WithCausef("port:%d", d.Port)
	}
	if d.HeapSizes.Initial < 0 || d.HeapSizes.Max < d.HeapSizes.Initial {
		return ErrInvalidOptions.WithCausef("heap sizes:%+v", d.HeapSizes)
	}
	return nil
}

// Create writes the ring, its class vars, the dht configuration and the
// current/target pointer, strictly in this order, then the grid config
// descriptor. The pointer is written after everything it references, so a
// failure never leaves it dangling. Records written before a failed step are
// left in place; retry with a fresh uuid.
func (c *StaticDHTCreator) Create(ctx context.Context, id uuid.UUID, dht StaticDHT) (*Result, error) {
	if err := dht.validate(); err != nil {
		return nil, err
	}
	if err := checkGridConfigDir(c.cfg.GridConfigDir); err != nil {
		return nil, err
	}
	if dht.DHTName == "" {
		dht.DHTName = DefaultDHTName(id)
	}
	if dht.GridConfigName == "" {
		dht.GridConfigName = DefaultGridConfigName(id)
	}
	res := &Result{
		DHTName:        dht.DHTName,
		RingName:       RingName(id),
		GridConfigName: dht.GridConfigName,
	}
	logger := log.With(zap.String("dht", res.DHTName), zap.String("ring", res.RingName))
	ringID := ring.NewIdentity(res.RingName, 0, 0)

	err := c.step(StepPlacement, func() error {
		placement, err := hash.NewStaticPlacement(HostGroupName(id), dht.Servers, dht.ReplicationFactor, c.cfg.Placement)
		res.Placement = placement
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.step(StepRing, func() error {
		_, err := c.storage.CreateRingTopology(ctx, ring.Topology{
			Identity:          ringID,
			HostGroup:         res.Placement.HostGroup,
			ReplicationFactor: res.Placement.ReplicationFactor,
			Servers:           res.Placement.Servers,
			Positions:         res.Placement.Positions,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	classVarsName := ClassVarsName(id)
	err = c.step(StepClassVars, func() error {
		_, err := c.storage.PutClassVars(ctx, res.DHTName, storage.ClassVars{
			Name: classVarsName,
			Vars: map[string]string{
				ClassVarInitialHeapSize: strconv.Itoa(dht.HeapSizes.Initial),
				ClassVarMaxHeapSize:     strconv.Itoa(dht.HeapSizes.Max),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.step(StepDHTConfig, func() error {
		config, err := c.storage.PutDHTConfiguration(ctx, res.DHTName, storage.DHTConfiguration{
			RingName:             res.RingName,
			Port:                 dht.Port,
			NSCreationOptions:    dht.NSCreationOptions,
			HostGroupToClassVars: map[string]string{res.Placement.HostGroup: classVarsName},
			Version:              0,
		})
		res.Config = config
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.step(StepPointer, func() error {
		_, err := c.storage.PutCurTarget(ctx, res.DHTName, storage.CurTargetPointer{Current: ringID, Target: ringID})
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.step(StepGridConfig, func() error {
		path, err := WriteGridConfig(c.cfg.GridConfigDir, GridConfig{
			Name:     res.GridConfigName,
			DHTName:  res.DHTName,
			Port:     dht.Port,
			StoreLoc: c.cfg.StoreLocator,
		})
		res.GridConfigPath = path
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("create static dht", zap.String("gridConfig", res.GridConfigPath),
		zap.Strings("servers", res.Placement.Servers), zap.Int("replicationFactor", res.Placement.ReplicationFactor))
	return res, nil
}

func (c *StaticDHTCreator) step(step Step, fn func() error) error {
	err := fn()
	metrics.RecordBootstrapStep(string(step), err)
	if err != nil {
		log.Error("fail to create static dht", zap.String("step", string(step)), zap.Error(err))
		return &StepError{Step: step, Err: err}
	}
	return nil
}
