// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"

	"github.com/ringmeta/ringmeta/server/ring"
)

// MetaStorage defines the storage operations on the ring topology meta info.
type MetaStorage interface {
	// CreateRingTopology writes the topology of a new ring instance, ErrRingAlreadyExists if it exists.
	CreateRingTopology(ctx context.Context, topology ring.Topology) (ring.Topology, error)
	GetRingTopology(ctx context.Context, id ring.Identity) (ring.Topology, error)
	// ListRingInstances returns every (config, instance) version of the ring with its creation time.
	ListRingInstances(ctx context.Context, ringName string) ([]ring.Record, error)
	RingInstanceExists(ctx context.Context, id ring.Identity) (bool, error)

	PutClassVars(ctx context.Context, dhtName string, classVars ClassVars) (ClassVars, error)
	GetClassVars(ctx context.Context, dhtName, name string, version int64) (ClassVars, error)

	// PutDHTConfiguration writes config as version config.Version, which must follow the latest one.
	PutDHTConfiguration(ctx context.Context, dhtName string, config DHTConfiguration) (DHTConfiguration, error)
	GetDHTConfiguration(ctx context.Context, dhtName string, version int64) (DHTConfiguration, error)

	PutCurTarget(ctx context.Context, dhtName string, pointer CurTargetPointer) (CurTargetPointer, error)
	GetCurTarget(ctx context.Context, dhtName string) (CurTargetPointer, error)
	// UpdateCurTarget applies fn to the latest pointer and writes it back atomically.
	UpdateCurTarget(ctx context.Context, dhtName string, fn func(*CurTargetPointer) error) (CurTargetPointer, error)
	WatchCurTarget(ctx context.Context, dhtName string, fn func(version int64)) error

	PutConvergenceRequest(ctx context.Context, dhtName string, request ConvergenceRequest) (ConvergenceRequest, error)
	GetConvergenceRequest(ctx context.Context, dhtName, id string) (ConvergenceRequest, error)
	ListConvergenceRequests(ctx context.Context, dhtName string) ([]ConvergenceRequest, error)
	// PutInFlightRequest records id as the request in flight, an empty id clears it.
	PutInFlightRequest(ctx context.Context, dhtName, id string) error
	// GetInFlightRequest returns false if no request is in flight.
	GetInFlightRequest(ctx context.Context, dhtName string) (string, bool, error)

	PutMode(ctx context.Context, dhtName, mode string) error
	// GetMode returns false if no mode was ever written.
	GetMode(ctx context.Context, dhtName string) (string, bool, error)
}
