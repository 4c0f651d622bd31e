// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ring

import "time"

// Topology is the durable record of a ring instance: which host group it
// covers and the replica owners of every ring position.
type Topology struct {
	Identity          Identity   `json:"identity"`
	HostGroup         string     `json:"hostGroup"`
	ReplicationFactor int        `json:"replicationFactor"`
	Servers           []string   `json:"servers"`
	Positions         [][]string `json:"positions"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Owners returns the replica owners of the given ring position.
func (t *Topology) Owners(position int) []string {
	if position < 0 || position >= len(t.Positions) {
		return nil
	}
	return t.Positions[position]
}
