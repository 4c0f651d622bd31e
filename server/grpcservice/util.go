// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package grpcservice

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// GetClientConn returns a gRPC client connection speaking the JSON codec.
// The addr is either host:port or a URL such as http://host:port.
func GetClientConn(ctx context.Context, addr string, tlsCfg *tls.Config, do ...grpc.DialOption) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if tlsCfg != nil {
		creds = credentials.NewTLS(tlsCfg)
	} else {
		creds = insecure.NewCredentials()
	}

	opts := append(do,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)

	target := addr
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, ErrParseURL.WithCause(err)
		}
		target = u.Host
	}

	cc, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, ErrGRPCDial.WithCause(err)
	}
	return cc, nil
}
