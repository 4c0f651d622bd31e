// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ring

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	identityDelimiter = ","
	identityFields    = 3
)

// Identity names a ring at a specific (config, instance) version pair.
// Its canonical string form is "name,configVersion,instanceVersion".
type Identity struct {
	Name            string `json:"name"`
	ConfigVersion   int64  `json:"configVersion"`
	InstanceVersion int64  `json:"instanceVersion"`
}

func NewIdentity(name string, configVersion, instanceVersion int64) Identity {
	return Identity{
		Name:            name,
		ConfigVersion:   configVersion,
		InstanceVersion: instanceVersion,
	}
}

// ParseIdentity parses the canonical string form, rejecting anything that
// would not format back to the same string.
func ParseIdentity(s string) (Identity, error) {
	fields := strings.Split(s, identityDelimiter)
	if len(fields) != identityFields {
		return Identity{}, ErrInvalidRingIdentity.WithCausef("expect %d fields, got %d, input:%q", identityFields, len(fields), s)
	}

	configVersion, err := parseVersion(fields[1])
	if err != nil {
		return Identity{}, ErrInvalidRingIdentity.WithCausef("bad config version, input:%q, err:%v", s, err)
	}
	instanceVersion, err := parseVersion(fields[2])
	if err != nil {
		return Identity{}, ErrInvalidRingIdentity.WithCausef("bad instance version, input:%q, err:%v", s, err)
	}

	id := NewIdentity(fields[0], configVersion, instanceVersion)
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func parseVersion(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	// Reject forms such as "+1" or "007" which do not survive formatting.
	if strconv.FormatInt(v, 10) != s {
		return 0, fmt.Errorf("non-canonical version %q", s)
	}
	return v, nil
}

// Validate checks that the identity is well formed.
func (id Identity) Validate() error {
	if len(id.Name) == 0 {
		return ErrInvalidRingIdentity.WithCausef("empty ring name")
	}
	if strings.Contains(id.Name, identityDelimiter) {
		return ErrInvalidRingIdentity.WithCausef("ring name contains delimiter, name:%q", id.Name)
	}
	if strings.TrimSpace(id.Name) != id.Name || strings.ContainsAny(id.Name, " \t\r\n/") {
		return ErrInvalidRingIdentity.WithCausef("ring name contains whitespace or path separator, name:%q", id.Name)
	}
	// The name is a segment of the store paths.
	if id.Name == "." || id.Name == ".." || strings.HasPrefix(id.Name, "@") {
		return ErrInvalidRingIdentity.WithCausef("ring name is not a valid path segment, name:%q", id.Name)
	}
	if id.ConfigVersion < 0 || id.InstanceVersion < 0 {
		return ErrInvalidRingIdentity.WithCausef("negative version, configVersion:%d, instanceVersion:%d", id.ConfigVersion, id.InstanceVersion)
	}
	return nil
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s%s%d%s%d", id.Name, identityDelimiter, id.ConfigVersion, identityDelimiter, id.InstanceVersion)
}

// Compare orders identities by config version, then instance version.
// Names are not part of the order.
func Compare(a, b Identity) int {
	switch {
	case a.ConfigVersion < b.ConfigVersion:
		return -1
	case a.ConfigVersion > b.ConfigVersion:
		return 1
	case a.InstanceVersion < b.InstanceVersion:
		return -1
	case a.InstanceVersion > b.InstanceVersion:
		return 1
	}
	return 0
}

// Record is an Identity as observed in the metadata store, annotated with
// its creation time and its current/target labels.
type Record struct {
	Identity     Identity
	CreationTime time.Time
	Current      bool
	Target       bool
}

func (r Record) Labelled() bool {
	return r.Current || r.Target
}

// Label returns the concatenated labels, e.g. "current target".
func (r Record) Label() string {
	labels := make([]string, 0, 2)
	if r.Current {
		labels = append(labels, "current")
	}
	if r.Target {
		labels = append(labels, "target")
	}
	return strings.Join(labels, " ")
}
