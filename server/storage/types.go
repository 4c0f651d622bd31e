// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"time"

	"github.com/ringmeta/ringmeta/server/ring"
)

// ClassVars is a named set of settings attached to a host group.
// Every write creates a new version.
type ClassVars struct {
	Name      string            `json:"name"`
	Version   int64             `json:"-"`
	Vars      map[string]string `json:"vars"`
	CreatedAt time.Time         `json:"-"`
}

// DHTConfiguration is one generation of the configuration of a DHT instance.
// Version is the config version, i.e. the version of the node holding it.
type DHTConfiguration struct {
	RingName             string            `json:"ringName" yaml:"ringName"`
	Port                 int               `json:"port" yaml:"port"`
	PassiveNodes         string            `json:"passiveNodes" yaml:"passiveNodes"`
	NSCreationOptions    string            `json:"nsCreationOptions" yaml:"nsCreationOptions"`
	HostGroupToClassVars map[string]string `json:"hostGroupToClassVars" yaml:"hostGroupToClassVars"`
	Version              int64             `json:"-" yaml:"version"`
	CreatedAt            time.Time         `json:"-" yaml:"createdAt"`
	Extra                map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// CurTargetPointer is the durable current/target pair of a DHT instance.
type CurTargetPointer struct {
	Current ring.Identity `json:"current"`
	Target  ring.Identity `json:"target"`
	Version int64         `json:"-"`
}

// ConvergenceRequest is the persisted record of a convergence request
// handled by the local ring master.
type ConvergenceRequest struct {
	ID        string        `json:"id"`
	Target    ring.Identity `json:"target"`
	State     string        `json:"state"`
	Message   string        `json:"message,omitempty"`
	IssuedAt  time.Time     `json:"issuedAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Version   int64         `json:"-"`
}
