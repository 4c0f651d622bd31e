// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package registry

import "github.com/ringmeta/ringmeta/pkg/coderr"

var ErrIndexOutOfRange = coderr.NewCodeError(coderr.InvalidParams, "ring list index out of range")
