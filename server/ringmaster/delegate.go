// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
)

type RequestState string

const (
	RequestIssued   RequestState = "issued"
	RequestRunning  RequestState = "running"
	RequestComplete RequestState = "complete"
	RequestFailed   RequestState = "failed"
)

func ParseRequestState(s string) (RequestState, error) {
	switch state := RequestState(s); state {
	case RequestIssued, RequestRunning, RequestComplete, RequestFailed:
		return state, nil
	}
	return "", ErrInvalidTransition.WithCausef("unknown request state %q", s)
}

func (s RequestState) Terminal() bool {
	return s == RequestComplete || s == RequestFailed
}

// RequestStatus is the status of a convergence request as reported by the ring master.
type RequestStatus struct {
	ID        uuid.UUID     `json:"id"`
	Target    ring.Identity `json:"target"`
	State     RequestState  `json:"state"`
	Message   string        `json:"message,omitempty"`
	IssuedAt  time.Time     `json:"issuedAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// RequestComplete reports whether the request reached a terminal state,
// successfully or not.
func (s RequestStatus) RequestComplete() bool {
	return s.State.Terminal()
}

func (s RequestStatus) Succeeded() bool {
	return s.State == RequestComplete
}

// Equal compares by value, every poll yields a fresh status.
func (s RequestStatus) Equal(o RequestStatus) bool {
	return s.ID == o.ID &&
		s.Target == o.Target &&
		s.State == o.State &&
		s.Message == o.Message &&
		s.IssuedAt.Equal(o.IssuedAt) &&
		s.UpdatedAt.Equal(o.UpdatedAt)
}

func (s RequestStatus) String() string {
	if len(s.Message) > 0 {
		return fmt.Sprintf("%s %s target:%s (%s)", s.ID, s.State, s.Target, s.Message)
	}
	return fmt.Sprintf("%s %s target:%s", s.ID, s.State, s.Target)
}

// Delegate is the execution service that converges a DHT instance to its
// target ring and reports the progress of the requests.
type Delegate interface {
	GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error)
	GetMode(ctx context.Context) (mode.Mode, error)
	SetMode(ctx context.Context, m mode.Mode) error
	// SetTarget asks for convergence to target, returning the id of the request.
	SetTarget(ctx context.Context, target ring.Identity) (uuid.UUID, error)
	// GetStatus returns false if the request is unknown.
	GetStatus(ctx context.Context, id uuid.UUID) (RequestStatus, bool, error)
	// GetCurrentConvergenceID returns false if no request is in flight.
	GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error)
}
