// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.
// This file fork from: https://github.com/buraksezer/consistent/blob/4516339c49db00f725fa89d0e3e7e970e4039af0/consistent.go
// Copyright (c) 2018 Burak Sezer
// All rights reserved.
//
// This code is licensed under the MIT License.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files(the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and / or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions :
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package hash places servers onto ring positions with a consistent hash with
// bounded loads, see
// https://research.googleblog.com/2017/04/consistent-hashing-with-bounded-loads.html
package hash

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

type Hasher interface {
	Sum64([]byte) uint64
}

// uniformHash distributes positions uniformly over the servers, keeping the
// distribution as stable as possible when the server set changes a little.
type uniformHash struct {
	hasher        Hasher
	virtualNodes  int
	positionCount uint64
	sortedSet     []uint64
	servers       map[string]struct{}
	loads         map[string]float64
	primaries     map[int]string
	ring          map[uint64]string
}

func newUniformHash(positionCount int, servers []string, hasher Hasher, virtualNodes int) (*uniformHash, error) {
	numVirtualNodes := len(servers) * virtualNodes
	c := &uniformHash{
		hasher:        hasher,
		virtualNodes:  virtualNodes,
		positionCount: uint64(positionCount),
		sortedSet:     make([]uint64, 0, numVirtualNodes),
		servers:       make(map[string]struct{}, len(servers)),
		loads:         make(map[string]float64, len(servers)),
		primaries:     make(map[int]string, positionCount),
		ring:          make(map[uint64]string, numVirtualNodes),
	}

	for _, server := range servers {
		c.add(server)
	}
	sort.Slice(c.sortedSet, func(i int, j int) bool {
		return c.sortedSet[i] < c.sortedSet[j]
	})
	if err := c.distributePositions(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *uniformHash) MinLoad() float64 {
	return math.Floor(c.AvgLoad())
}

func (c *uniformHash) AvgLoad() float64 {
	return float64(c.positionCount) / float64(len(c.servers))
}

func (c *uniformHash) MaxLoad() float64 {
	return math.Ceil(c.AvgLoad())
}

func (c *uniformHash) add(server string) {
	for i := 0; i < c.virtualNodes; i++ {
		h := c.hasher.Sum64([]byte(fmt.Sprintf("%s%d", server, i)))
		// Colliding virtual nodes keep their first owner.
		if _, ok := c.ring[h]; ok {
			continue
		}
		c.ring[h] = server
		c.sortedSet = append(c.sortedSet, h)
	}
	c.servers[server] = struct{}{}
}

// startIndex is where the walk of the position begins on the sorted ring.
func (c *uniformHash) startIndex(position int) int {
	bs := make([]byte, 8)
	binary.LittleEndian.PutUint64(bs, uint64(position))
	key := c.hasher.Sum64(bs)
	idx := sort.Search(len(c.sortedSet), func(i int) bool {
		return c.sortedSet[i] >= key
	})
	if idx >= len(c.sortedSet) {
		idx = 0
	}
	return idx
}

func (c *uniformHash) distributePositions() error {
	for position := 0; position < int(c.positionCount); position++ {
		idx := c.startIndex(position)
		if c.distributeWithLoad(position, idx, c.AvgLoad()) {
			continue
		}
		if !c.distributeWithLoad(position, idx, c.MaxLoad()) {
			return ErrNoRoomForPosition.WithCausef("position:%d, servers:%d", position, len(c.servers))
		}
	}
	return nil
}

func (c *uniformHash) distributeWithLoad(position, idx int, allowedLoad float64) bool {
	for count := 0; count < len(c.sortedSet); count++ {
		server := c.ring[c.sortedSet[idx]]
		if c.loads[server]+1 <= allowedLoad {
			c.primaries[position] = server
			c.loads[server]++
			return true
		}
		idx++
		if idx >= len(c.sortedSet) {
			idx = 0
		}
	}
	return false
}

// owners returns the primary of the position followed by the next distinct
// servers met walking the ring clockwise, n servers at most.
func (c *uniformHash) owners(position int, n int) []string {
	primary, ok := c.primaries[position]
	if !ok {
		return nil
	}
	owners := make([]string, 0, n)
	owners = append(owners, primary)
	idx := c.startIndex(position)
	for count := 0; len(owners) < n && count < len(c.sortedSet); count++ {
		server := c.ring[c.sortedSet[idx]]
		if !contains(owners, server) {
			owners = append(owners, server)
		}
		idx++
		if idx >= len(c.sortedSet) {
			idx = 0
		}
	}
	return owners
}

// LoadDistribution exposes the primary load of the servers.
func (c *uniformHash) LoadDistribution() map[string]float64 {
	res := make(map[string]float64, len(c.loads))
	for server, load := range c.loads {
		res[server] = load
	}
	return res
}

func contains(servers []string, server string) bool {
	for _, s := range servers {
		if s == server {
			return true
		}
	}
	return false
}
