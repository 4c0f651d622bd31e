// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ring

import "github.com/ringmeta/ringmeta/pkg/coderr"

var ErrInvalidRingIdentity = coderr.NewCodeError(coderr.InvalidParams, "invalid ring identity")
