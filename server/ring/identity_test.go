// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ring

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	re := require.New(t)

	names := []string{"ring.a", "ring.3f2b6c1e-5a0d-4f77-9d43-2d2b8f4f0c11", "r"}
	versions := []int64{0, 1, 2, 17, math.MaxInt64}
	for _, name := range names {
		for _, cv := range versions {
			for _, iv := range versions {
				id := NewIdentity(name, cv, iv)
				parsed, err := ParseIdentity(id.String())
				re.NoError(err)
				re.Equal(id, parsed)
			}
		}
	}
}

func TestParseIdentityRejectsMalformed(t *testing.T) {
	re := require.New(t)

	inputs := []string{
		"",
		"not-a-valid-identity",
		"ring.a,1",
		"ring.a,1,2,3",
		",1,2",
		"ring.a,x,2",
		"ring.a,1,",
		"ring.a,-1,2",
		"ring.a,+1,2",
		"ring.a,01,2",
		"ring.a,1,2 ",
		" ring.a,1,2",
		"ring a,1,2",
		"ring.a,1,99999999999999999999",
		".,1,2",
		"..,1,2",
		"@latest,1,2",
		"ring/a,1,2",
	}
	for _, input := range inputs {
		_, err := ParseIdentity(input)
		re.Error(err, fmt.Sprintf("input:%q", input))
		re.True(coderr.Is(err, coderr.InvalidParams), fmt.Sprintf("input:%q", input))
		re.ErrorIs(err, ErrInvalidRingIdentity)
	}
}

func TestCompareOrdersByVersions(t *testing.T) {
	re := require.New(t)

	ids := []Identity{
		NewIdentity("b", 1, 0),
		NewIdentity("a", 0, 2),
		NewIdentity("c", 1, 1),
		NewIdentity("a", 0, 0),
	}
	sort.Slice(ids, func(i, j int) bool { return Compare(ids[i], ids[j]) < 0 })

	re.Equal([]Identity{
		NewIdentity("a", 0, 0),
		NewIdentity("a", 0, 2),
		NewIdentity("b", 1, 0),
		NewIdentity("c", 1, 1),
	}, ids)
	re.Equal(0, Compare(NewIdentity("x", 3, 4), NewIdentity("y", 3, 4)))
}

func TestRecordLabel(t *testing.T) {
	re := require.New(t)

	r := Record{Identity: NewIdentity("ring.a", 0, 0)}
	re.Equal("", r.Label())
	re.False(r.Labelled())

	r.Current = true
	re.Equal("current", r.Label())
	r.Target = true
	re.Equal("current target", r.Label())
	r.Current = false
	re.Equal("target", r.Label())
	re.True(r.Labelled())
}
