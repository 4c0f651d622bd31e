// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"time"

	"github.com/ringmeta/ringmeta/server/grpcservice"
	"github.com/ringmeta/ringmeta/server/storage"
)

// DefaultServiceName is the well-known name the ring master is served under.
const DefaultServiceName = "ringmeta.RingMaster"

const (
	methodGetDHTConfiguration     = "GetDHTConfiguration"
	methodGetMode                 = "GetMode"
	methodSetMode                 = "SetMode"
	methodSetTarget               = "SetTarget"
	methodGetStatus               = "GetStatus"
	methodGetCurrentConvergenceID = "GetCurrentConvergenceID"
)

type GetDHTConfigurationRequest struct{}

type GetDHTConfigurationResponse struct {
	Header    grpcservice.ResponseHeader `json:"header"`
	Config    storage.DHTConfiguration   `json:"config"`
	Version   int64                      `json:"version"`
	CreatedAt time.Time                  `json:"createdAt"`
}

type GetModeRequest struct{}

type GetModeResponse struct {
	Header grpcservice.ResponseHeader `json:"header"`
	Mode   string                     `json:"mode"`
}

type SetModeRequest struct {
	Mode string `json:"mode"`
}

type SetModeResponse struct {
	Header grpcservice.ResponseHeader `json:"header"`
}

type SetTargetRequest struct {
	// Target is the canonical string form of the ring identity.
	Target string `json:"target"`
}

type SetTargetResponse struct {
	Header grpcservice.ResponseHeader `json:"header"`
	ID     string                     `json:"id"`
}

type GetStatusRequest struct {
	ID string `json:"id"`
}

type GetStatusResponse struct {
	Header grpcservice.ResponseHeader `json:"header"`
	Found  bool                       `json:"found"`
	Status RequestStatus              `json:"status"`
}

type GetCurrentConvergenceIDRequest struct{}

type GetCurrentConvergenceIDResponse struct {
	Header grpcservice.ResponseHeader `json:"header"`
	Found  bool                       `json:"found"`
	ID     string                     `json:"id"`
}
