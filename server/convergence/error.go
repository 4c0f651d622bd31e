// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package convergence

import (
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/coderr"
)

var (
	ErrConvergenceInProgress = coderr.NewCodeError(coderr.Conflict, "convergence in progress")
	ErrRequestGone           = coderr.NewCodeError(coderr.NotFound, "convergence request disappeared")
)

// errTargetMoved stops a target restore once another target was set.
var errTargetMoved = errors.New("target moved")
