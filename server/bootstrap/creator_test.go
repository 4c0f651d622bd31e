// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"github.com/stretchr/testify/require"
)

const (
	testPort     = 7575
	testStoreLoc = "127.0.0.1:2379"
)

var testUUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func newTestDHT() StaticDHT {
	return StaticDHT{
		Servers:           []string{"c", "a", "b"},
		ReplicationFactor: 2,
		Port:              testPort,
		HeapSizes:         HeapSizes{Initial: 1024, Max: 4096},
	}
}

func newTestCreator(t *testing.T) (*StaticDHTCreator, *storage.FaultyStore, storage.Storage, string) {
	store := storage.NewFaultyStore(storage.NewStore(storage.NewMemKV(), storage.Options{}))
	s := storage.NewStorage(store)
	t.Cleanup(func() { _ = s.Close() })

	dir := t.TempDir()
	creator := NewStaticDHTCreator(s, CreatorConfig{GridConfigDir: dir, StoreLocator: testStoreLoc})
	return creator, store, s, dir
}

func TestCreateStaticDHT(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	creator, store, s, dir := newTestCreator(t)

	res, err := creator.Create(ctx, testUUID, newTestDHT())
	re.NoError(err)

	ringName := "ring." + testUUID.String()
	dhtName := "SK." + testUUID.String()
	ringID := ring.NewIdentity(ringName, 0, 0)
	re.Equal(ringName, res.RingName)
	re.Equal(dhtName, res.DHTName)
	re.Equal("GC_"+testUUID.String(), res.GridConfigName)

	config, err := s.GetDHTConfiguration(ctx, dhtName, storage.LatestVersion)
	re.NoError(err)
	re.Equal(ringName, config.RingName)
	re.Equal(testPort, config.Port)
	re.Equal(int64(0), config.Version)
	re.Equal(map[string]string{HostGroupName(testUUID): ClassVarsName(testUUID)}, config.HostGroupToClassVars)

	classVars, err := s.GetClassVars(ctx, dhtName, ClassVarsName(testUUID), storage.LatestVersion)
	re.NoError(err)
	re.Equal("1024", classVars.Vars[ClassVarInitialHeapSize])
	re.Equal("4096", classVars.Vars[ClassVarMaxHeapSize])

	topology, err := s.GetRingTopology(ctx, ringID)
	re.NoError(err)
	re.Equal([]string{"a", "b", "c"}, topology.Servers)
	re.Equal(2, topology.ReplicationFactor)
	re.NotEmpty(topology.Positions)
	for _, owners := range topology.Positions {
		re.Len(owners, 2)
		re.NotEqual(owners[0], owners[1])
	}

	pointer, err := s.GetCurTarget(ctx, dhtName)
	re.NoError(err)
	re.Equal(ringID, pointer.Current)
	re.Equal(ringID, pointer.Target)

	gridConfig, err := ReadGridConfig(dir, res.GridConfigName)
	re.NoError(err)
	re.Equal(dhtName, gridConfig.DHTName)
	re.Equal(testPort, gridConfig.Port)
	re.Equal(testStoreLoc, gridConfig.StoreLoc)
	re.Equal(filepath.Join(dir, res.GridConfigName+".env"), res.GridConfigPath)

	// The pointer is the last record written.
	writes := store.Writes()
	re.Equal([]string{
		storage.MakeRingInstancePath(ringName, 0, 0),
		storage.MakeClassVarsPath(dhtName, ClassVarsName(testUUID)),
		storage.MakeDHTConfigPath(dhtName),
		storage.MakeCurTargetPath(dhtName),
	}, writes)

	listing, err := registry.New(s, dhtName).ListVersions(ctx, ringName)
	re.NoError(err)
	re.Len(listing.Records, 1)
	re.Equal("current target", listing.Records[0].Label())
}

func TestCreateStaticDHTDeterministic(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	first, _, _, _ := newTestCreator(t)
	second, _, _, _ := newTestCreator(t)
	dht := newTestDHT()
	a, err := first.Create(ctx, testUUID, dht)
	re.NoError(err)
	dht.Servers = []string{"b", "c", "a"}
	b, err := second.Create(ctx, testUUID, dht)
	re.NoError(err)
	re.Equal(a.Placement, b.Placement)
}

func TestCreateStaticDHTOverrides(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	creator, _, s, dir := newTestCreator(t)

	dht := newTestDHT()
	dht.DHTName = "mydht"
	dht.GridConfigName = "mygc"
	dht.NSCreationOptions = "mode=loose"
	res, err := creator.Create(ctx, testUUID, dht)
	re.NoError(err)
	re.Equal("mydht", res.DHTName)
	re.Equal(filepath.Join(dir, "mygc.env"), res.GridConfigPath)

	config, err := s.GetDHTConfiguration(ctx, "mydht", 0)
	re.NoError(err)
	re.Equal("mode=loose", config.NSCreationOptions)
}

func TestCreateStaticDHTInvalid(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()

	creator, store, _, _ := newTestCreator(t)
	for _, mutate := range []func(*StaticDHT){
		func(d *StaticDHT) { d.Servers = nil },
		func(d *StaticDHT) { d.ReplicationFactor = 0 },
		func(d *StaticDHT) { d.Port = 0 },
		func(d *StaticDHT) { d.HeapSizes = HeapSizes{Initial: 10, Max: 1} },
	} {
		dht := newTestDHT()
		mutate(&dht)
		_, err := creator.Create(ctx, testUUID, dht)
		re.ErrorIs(err, ErrInvalidOptions)
	}

	missing := NewStaticDHTCreator(storage.NewStorageWithMemoryBackend(storage.Options{}),
		CreatorConfig{GridConfigDir: filepath.Join(t.TempDir(), "missing")})
	_, err := missing.Create(ctx, testUUID, newTestDHT())
	re.ErrorIs(err, ErrGridConfigDirMissing)
	re.Empty(store.Writes())
}

func TestCreateStaticDHTStepFailure(t *testing.T) {
	injected := errors.New("injected")
	dhtName := DefaultDHTName(testUUID)
	ringName := RingName(testUUID)

	cases := []struct {
		step   Step
		inject func(store *storage.FaultyStore, dht *StaticDHT, dir string)
		writes int
	}{
		{
			step:   StepPlacement,
			inject: func(_ *storage.FaultyStore, dht *StaticDHT, _ string) { dht.ReplicationFactor = 4 },
			writes: 0,
		},
		{
			step: StepRing,
			inject: func(store *storage.FaultyStore, _ *StaticDHT, _ string) {
				store.FailPuts(storage.MakeRingPath(ringName), injected)
			},
			writes: 0,
		},
		{
			step: StepClassVars,
			inject: func(store *storage.FaultyStore, _ *StaticDHT, _ string) {
				store.FailPuts(storage.MakeClassVarsPath(dhtName, ClassVarsName(testUUID)), injected)
			},
			writes: 1,
		},
		{
			step: StepDHTConfig,
			inject: func(store *storage.FaultyStore, _ *StaticDHT, _ string) {
				store.FailPuts(storage.MakeDHTConfigPath(dhtName), injected)
			},
			writes: 2,
		},
		{
			step: StepPointer,
			inject: func(store *storage.FaultyStore, _ *StaticDHT, _ string) {
				store.FailPuts(storage.MakeCurTargetPath(dhtName), injected)
			},
			writes: 3,
		},
		{
			step: StepGridConfig,
			inject: func(_ *storage.FaultyStore, _ *StaticDHT, dir string) {
				// A directory in place of the descriptor file makes the write fail.
				_ = os.Mkdir(GridConfigPath(dir, DefaultGridConfigName(testUUID)), 0o755)
			},
			writes: 4,
		},
	}

	for _, c := range cases {
		t.Run(string(c.step), func(t *testing.T) {
			re := require.New(t)
			ctx := context.Background()
			creator, store, s, dir := newTestCreator(t)

			dht := newTestDHT()
			c.inject(store, &dht, dir)
			_, err := creator.Create(ctx, testUUID, dht)
			re.Error(err)
			step, ok := FailedStep(err)
			re.True(ok)
			re.Equal(c.step, step)
			re.Len(store.Writes(), c.writes)

			pointer, err := s.GetCurTarget(ctx, dhtName)
			if c.step != StepGridConfig {
				re.ErrorIs(err, storage.ErrCurTargetNotFound)
				return
			}
			// Everything the pointer references is present.
			re.NoError(err)
			exists, err := s.RingInstanceExists(ctx, pointer.Current)
			re.NoError(err)
			re.True(exists)
			_, err = s.GetDHTConfiguration(ctx, dhtName, storage.LatestVersion)
			re.NoError(err)
		})
	}
}

func TestCreateStaticDHTRetryWithFreshUUID(t *testing.T) {
	re := require.New(t)
	ctx := context.Background()
	creator, store, s, _ := newTestCreator(t)

	store.FailPuts(storage.MakeDHTConfigPath(DefaultDHTName(testUUID)), errors.New("injected"))
	_, err := creator.Create(ctx, testUUID, newTestDHT())
	re.Error(err)
	store.Heal()

	fresh := uuid.New()
	res, err := creator.Create(ctx, fresh, newTestDHT())
	re.NoError(err)
	pointer, err := s.GetCurTarget(ctx, res.DHTName)
	re.NoError(err)
	re.Equal(RingName(fresh), pointer.Current.Name)
}
