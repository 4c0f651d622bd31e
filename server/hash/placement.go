// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package hash

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ringmeta/ringmeta/pkg/assert"
)

const (
	DefaultVirtualNodes       = 127
	DefaultPositionsPerServer = 16
)

// XXHasher hashes with xxhash64.
type XXHasher struct{}

func (XXHasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

type Config struct {
	Hasher Hasher
	// VirtualNodes is the number of points of every server on the hash ring.
	VirtualNodes int
	// Positions is the number of ring positions, DefaultPositionsPerServer per server if zero.
	Positions int
}

// Placement is a static placement of a server set onto ring positions, every
// position owned by ReplicationFactor distinct servers.
type Placement struct {
	HostGroup         string
	Servers           []string
	ReplicationFactor int
	Positions         [][]string
}

// NewStaticPlacement places the servers of the host group onto the ring.
// The result only depends on the inputs, not on the order of servers.
func NewStaticPlacement(hostGroup string, servers []string, replicationFactor int, cfg Config) (*Placement, error) {
	if len(servers) == 0 {
		return nil, ErrEmptyServerSet.WithCausef("host group:%s", hostGroup)
	}
	sorted := append([]string{}, servers...)
	sort.Strings(sorted)
	for i, s := range sorted {
		if len(strings.TrimSpace(s)) == 0 {
			return nil, ErrEmptyServerSet.WithCausef("blank server in host group:%s", hostGroup)
		}
		if i > 0 && sorted[i-1] == s {
			return nil, ErrDuplicateServer.WithCausef("server:%s", s)
		}
	}
	if replicationFactor <= 0 {
		return nil, ErrInvalidReplicationFactor.WithCausef("replication factor:%d", replicationFactor)
	}
	if replicationFactor > len(sorted) {
		return nil, ErrInsufficientServers.WithCausef("replication factor:%d, servers:%d", replicationFactor, len(sorted))
	}

	if cfg.Hasher == nil {
		cfg.Hasher = XXHasher{}
	}
	if cfg.VirtualNodes == 0 {
		cfg.VirtualNodes = DefaultVirtualNodes
	}
	if cfg.Positions == 0 {
		cfg.Positions = len(sorted) * DefaultPositionsPerServer
	}
	if cfg.VirtualNodes < 0 || cfg.Positions < 0 {
		return nil, ErrInvalidPlacementParameters.WithCausef("virtual nodes:%d, positions:%d", cfg.VirtualNodes, cfg.Positions)
	}

	c, err := newUniformHash(cfg.Positions, sorted, cfg.Hasher, cfg.VirtualNodes)
	if err != nil {
		return nil, err
	}

	positions := make([][]string, 0, cfg.Positions)
	for p := 0; p < cfg.Positions; p++ {
		owners := c.owners(p, replicationFactor)
		assert.Assertf(len(owners) == replicationFactor, "position %d has %d owners, expect %d", p, len(owners), replicationFactor)
		positions = append(positions, owners)
	}
	return &Placement{
		HostGroup:         hostGroup,
		Servers:           sorted,
		ReplicationFactor: replicationFactor,
		Positions:         positions,
	}, nil
}

// Coverage counts the positions every server owns a replica of.
func (p *Placement) Coverage() map[string]int {
	coverage := make(map[string]int, len(p.Servers))
	for _, owners := range p.Positions {
		for _, s := range owners {
			coverage[s]++
		}
	}
	return coverage
}
