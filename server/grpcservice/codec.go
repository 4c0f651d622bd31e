// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package grpcservice

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the content subtype of the JSON codec.
const JSONCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries plain Go structs over gRPC.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, ErrJSONCodec.WithCause(err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return ErrJSONCodec.WithCause(err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return JSONCodecName
}
