// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package registry

import "github.com/ringmeta/ringmeta/server/ring"

// Listing is one enumeration of the versions of a ring. It is never refreshed.
type Listing struct {
	Records []ring.Record
}

// Entry is a record of a listing with its index in the listing.
type Entry struct {
	Index  int
	Record ring.Record
}

// Window keeps the most recent limit records plus every labelled record,
// in listing order. A non-positive limit keeps everything.
func (l Listing) Window(limit int) []Entry {
	first := 0
	if limit > 0 && len(l.Records) > limit {
		first = len(l.Records) - limit
	}

	entries := make([]Entry, 0, len(l.Records)-first)
	for i, r := range l.Records {
		if i >= first || r.Labelled() {
			entries = append(entries, Entry{Index: i, Record: r})
		}
	}
	return entries
}

// Resolve returns the identity at index of the listing.
func (l Listing) Resolve(index int) (ring.Identity, error) {
	if index < 0 || index >= len(l.Records) {
		return ring.Identity{}, ErrIndexOutOfRange.WithCausef("index:%d, records:%d", index, len(l.Records))
	}
	return l.Records[index].Identity, nil
}

func (l Listing) Len() int {
	return len(l.Records)
}
