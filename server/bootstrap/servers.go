// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package bootstrap

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

const serverDelimiter = ","

// ParseServers parses a comma separated server list into a set.
func ParseServers(s string) []string {
	return toSet(strings.Split(s, serverDelimiter))
}

// ParseServersFile reads one server per line. Blank lines are skipped.
func ParseServersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrParseServers.WithCausef("open:%s, err:%v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, ErrParseServers.WithCausef("read:%s, err:%v", path, err)
	}
	return toSet(lines), nil
}

func toSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	set := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		set = append(set, item)
	}
	sort.Strings(set)
	return set
}
