// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package mode

import (
	"strings"

	"github.com/ringmeta/ringmeta/pkg/coderr"
)

var ErrInvalidMode = coderr.NewCodeError(coderr.InvalidParams, "invalid mode")

// Mode is the operational mode of a DHT instance. Changes are always explicit
// operator actions.
type Mode string

const (
	// Active accepts reconfiguration.
	Active Mode = "Active"
	// Quiesced rejects new reconfiguration.
	Quiesced Mode = "Quiesced"
	// Manual leaves convergence to be driven by hand.
	Manual Mode = "Manual"
)

// Default is the mode of a DHT instance that never had one set.
const Default = Active

var modes = []Mode{Active, Quiesced, Manual}

// All returns every known mode.
func All() []Mode {
	return append([]Mode{}, modes...)
}

// Parse resolves a mode name case-insensitively, ErrInvalidMode if unknown.
func Parse(name string) (Mode, error) {
	trimmed := strings.TrimSpace(name)
	for _, m := range modes {
		if strings.EqualFold(string(m), trimmed) {
			return m, nil
		}
	}
	return "", ErrInvalidMode.WithCausef("mode:%q, expect one of %v", name, modes)
}

func (m Mode) Valid() bool {
	parsed, err := Parse(string(m))
	return err == nil && parsed == m
}

// AcceptsTarget reports whether a new target may be accepted in this mode.
func (m Mode) AcceptsTarget() bool {
	return m != Quiesced
}

func (m Mode) String() string {
	return string(m)
}
