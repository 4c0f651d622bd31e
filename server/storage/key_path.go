// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	pathDelimiter = "/"

	nodeSpace       = "/n"
	childIndexSpace = "/c"
	latestSuffix    = "@latest"
	versionsSegment = "@v"
	childrenSegment = "@"

	rings      = "rings"
	ringConfig = "config"
	instance   = "instance"
	dht        = "dht"
	classVars  = "classvars"
	dhtConfig  = "config"
	curTarget  = "curtarget"
	converge   = "convergence"
	mode       = "mode"
	inFlight   = "inflight"
)

// MakeRingPath returns the root path of a named ring.
// example:
// ring.x 0/0: /rings/ring.x/config/00000000000000000000/instance/00000000000000000000 -> ring.Topology
func MakeRingPath(ringName string) string {
	return path.Join(pathDelimiter, rings, ringName)
}

func MakeRingConfigPath(ringName string) string {
	return path.Join(MakeRingPath(ringName), ringConfig)
}

func MakeRingInstancesPath(ringName string, configVersion int64) string {
	return path.Join(MakeRingConfigPath(ringName), fmtID(configVersion), instance)
}

func MakeRingInstancePath(ringName string, configVersion, instanceVersion int64) string {
	return path.Join(MakeRingInstancesPath(ringName, configVersion), fmtID(instanceVersion))
}

func MakeDHTPath(dhtName string) string {
	return path.Join(pathDelimiter, dht, dhtName)
}

func MakeClassVarsPath(dhtName, classVarsName string) string {
	return path.Join(MakeDHTPath(dhtName), classVars, classVarsName)
}

func MakeDHTConfigPath(dhtName string) string {
	return path.Join(MakeDHTPath(dhtName), dhtConfig)
}

func MakeCurTargetPath(dhtName string) string {
	return path.Join(MakeDHTPath(dhtName), curTarget)
}

func MakeConvergenceRequestsPath(dhtName string) string {
	return path.Join(MakeDHTPath(dhtName), converge)
}

func MakeConvergenceRequestPath(dhtName string, requestID string) string {
	return path.Join(MakeConvergenceRequestsPath(dhtName), requestID)
}

func MakeModePath(dhtName string) string {
	return path.Join(MakeDHTPath(dhtName), mode)
}

// MakeInFlightRequestPath holds the id of the convergence request in flight, empty if none.
func MakeInFlightRequestPath(dhtName string) string {
	return path.Join(MakeDHTPath(dhtName), inFlight)
}

func makeLatestKey(p string) string {
	return nodeSpace + p + pathDelimiter + latestSuffix
}

func makeVersionKey(p string, version int64) string {
	return nodeSpace + p + pathDelimiter + versionsSegment + pathDelimiter + fmtID(version)
}

func makeChildIndexPrefix(parent string) string {
	if parent == pathDelimiter {
		return childIndexSpace + pathDelimiter + childrenSegment + pathDelimiter
	}
	return childIndexSpace + parent + pathDelimiter + childrenSegment + pathDelimiter
}

func validatePath(p string) error {
	if !strings.HasPrefix(p, pathDelimiter) || p == pathDelimiter || strings.HasSuffix(p, pathDelimiter) {
		return ErrInvalidPath.WithCausef("path:%q", p)
	}
	for _, segment := range splitPath(p) {
		if len(segment) == 0 || segment == "." || segment == ".." || strings.HasPrefix(segment, "@") {
			return ErrInvalidPath.WithCausef("bad segment %q in path:%q", segment, p)
		}
	}
	return nil
}

func splitPath(p string) []string {
	return strings.Split(strings.TrimPrefix(p, pathDelimiter), pathDelimiter)
}

func joinPath(parent, child string) string {
	if parent == pathDelimiter {
		return pathDelimiter + child
	}
	return parent + pathDelimiter + child
}

func fmtID(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// ParseID parses a zero padded version segment.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrDecode.WithCausef("bad id segment %q", s)
	}
	if id < 0 {
		return 0, ErrDecode.WithCausef("negative id segment %q", s)
	}
	return id, nil
}
