// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package registry

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
)

// Registry enumerates the versions of rings known to the meta storage of a DHT instance.
type Registry struct {
	storage storage.MetaStorage
	dhtName string
}

func New(storage storage.MetaStorage, dhtName string) *Registry {
	return &Registry{
		storage: storage,
		dhtName: dhtName,
	}
}

// ListVersions returns every version of the ring ordered by creation time,
// labelled with the live current/target pointer of the DHT instance.
// Any read failure aborts the whole listing.
func (r *Registry) ListVersions(ctx context.Context, ringName string) (Listing, error) {
	records, err := r.storage.ListRingInstances(ctx, ringName)
	if err != nil {
		return Listing{}, errors.WithMessagef(err, "list versions of ring:%s", ringName)
	}

	pointer, err := r.storage.GetCurTarget(ctx, r.dhtName)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrCurTargetNotFound):
		log.Debug("no cur target pointer, list without labels", zap.String("dht", r.dhtName))
	default:
		return Listing{}, errors.WithMessagef(err, "read cur target pointer of dht:%s", r.dhtName)
	}

	for i := range records {
		records[i].Current = records[i].Identity == pointer.Current
		records[i].Target = records[i].Identity == pointer.Target
	}
	SortRecords(records)
	return Listing{Records: records}, nil
}

// SortRecords sorts ascending by creation time, ties broken by (config version, instance version).
func SortRecords(records []ring.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreationTime.Equal(b.CreationTime) {
			return a.CreationTime.Before(b.CreationTime)
		}
		return ring.Compare(a.Identity, b.Identity) < 0
	})
}
