// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package grpcservice

import (
	"strings"

	"github.com/ringmeta/ringmeta/pkg/coderr"
)

const causeSeparator = ", cause:"

// ResponseHeader is carried by every response to report the handling error.
type ResponseHeader struct {
	Code  int32  `json:"code"`
	Error string `json:"error,omitempty"`
}

func OkHeader() ResponseHeader {
	return ResponseHeader{Code: int32(coderr.Ok)}
}

// ErrHeader builds the header of a failed request, Internal if err carries no code.
func ErrHeader(err error) ResponseHeader {
	if err == nil {
		return OkHeader()
	}
	code, ok := coderr.GetCauseCode(err)
	if !ok {
		code = coderr.Internal
	}
	return ResponseHeader{Code: int32(code), Error: err.Error()}
}

// Err rebuilds the error reported by the header, matched against the known
// sentinels first so that errors.Is keeps working across the wire.
func (h ResponseHeader) Err(known ...coderr.CodeError) error {
	if coderr.Code(h.Code) == coderr.Ok {
		return nil
	}

	for _, sentinel := range known {
		if sentinel.Code() != coderr.Code(h.Code) {
			continue
		}
		prefix := sentinel.Error()
		if !strings.HasPrefix(h.Error, prefix) {
			continue
		}
		cause := strings.TrimPrefix(strings.TrimPrefix(h.Error, prefix), causeSeparator)
		if len(cause) == 0 {
			return sentinel
		}
		return sentinel.WithCausef("%s", cause)
	}
	return coderr.NewCodeError(coderr.Code(h.Code), h.Error)
}
