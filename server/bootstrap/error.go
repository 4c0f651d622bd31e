// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package bootstrap

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/coderr"
)

var (
	ErrInvalidOptions       = coderr.NewCodeError(coderr.InvalidParams, "invalid static dht options")
	ErrGridConfigDirMissing = coderr.NewCodeError(coderr.InvalidParams, "grid config dir does not exist")
	ErrWriteGridConfig      = coderr.NewCodeError(coderr.Internal, "write grid config")
	ErrReadGridConfig       = coderr.NewCodeError(coderr.Internal, "read grid config")
	ErrParseServers         = coderr.NewCodeError(coderr.InvalidParams, "parse servers")
)

type Step string

const (
	StepPlacement  Step = "placement"
	StepRing       Step = "ring"
	StepClassVars  Step = "class_vars"
	StepDHTConfig  Step = "dht_config"
	StepPointer    Step = "pointer"
	StepGridConfig Step = "grid_config"
)

// StepError is the failure of one step of the static dht creation. The
// records written by the steps before it are left in place.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("create static dht, step:%s, err:%v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step err failed at, if err is a StepError.
func FailedStep(err error) (Step, bool) {
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		return "", false
	}
	return stepErr.Step, true
}
