// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ringmeta/ringmeta/server/grpcservice"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"google.golang.org/grpc"
)

// Client reaches a remote ring master by address and service name.
type Client struct {
	conn        *grpc.ClientConn
	serviceName string
	timeout     time.Duration
}

// Dial connects lazily to the ring master at addr.
func Dial(ctx context.Context, addr, serviceName string, timeout time.Duration) (*Client, error) {
	conn, err := grpcservice.GetClientConn(ctx, addr, nil)
	if err != nil {
		return nil, ErrControlPlaneUnreachable.WithCause(err)
	}
	return NewClient(conn, serviceName, timeout), nil
}

// NewClient wraps a connection created with grpcservice.GetClientConn.
func NewClient(conn *grpc.ClientConn, serviceName string, timeout time.Duration) *Client {
	if len(serviceName) == 0 {
		serviceName = DefaultServiceName
	}
	return &Client{
		conn:        conn,
		serviceName: serviceName,
		timeout:     timeout,
	}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.conn.Invoke(ctx, "/"+c.serviceName+"/"+method, req, resp); err != nil {
		return ErrControlPlaneUnreachable.WithCausef("method:%s, err:%v", method, err)
	}
	return nil
}

func (c *Client) GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error) {
	resp := &GetDHTConfigurationResponse{}
	if err := c.invoke(ctx, methodGetDHTConfiguration, &GetDHTConfigurationRequest{}, resp); err != nil {
		return storage.DHTConfiguration{}, err
	}
	if err := resp.Header.Err(knownErrors...); err != nil {
		return storage.DHTConfiguration{}, err
	}
	config := resp.Config
	config.Version = resp.Version
	config.CreatedAt = resp.CreatedAt
	return config, nil
}

func (c *Client) GetMode(ctx context.Context) (mode.Mode, error) {
	resp := &GetModeResponse{}
	if err := c.invoke(ctx, methodGetMode, &GetModeRequest{}, resp); err != nil {
		return "", err
	}
	if err := resp.Header.Err(knownErrors...); err != nil {
		return "", err
	}
	return mode.Parse(resp.Mode)
}

func (c *Client) SetMode(ctx context.Context, m mode.Mode) error {
	resp := &SetModeResponse{}
	if err := c.invoke(ctx, methodSetMode, &SetModeRequest{Mode: m.String()}, resp); err != nil {
		return err
	}
	return resp.Header.Err(knownErrors...)
}

func (c *Client) SetTarget(ctx context.Context, target ring.Identity) (uuid.UUID, error) {
	resp := &SetTargetResponse{}
	if err := c.invoke(ctx, methodSetTarget, &SetTargetRequest{Target: target.String()}, resp); err != nil {
		return uuid.Nil, err
	}
	if err := resp.Header.Err(knownErrors...); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(resp.ID)
	if err != nil {
		return uuid.Nil, ErrInvalidRequestID.WithCausef("id:%q, err:%v", resp.ID, err)
	}
	return id, nil
}

func (c *Client) GetStatus(ctx context.Context, id uuid.UUID) (RequestStatus, bool, error) {
	resp := &GetStatusResponse{}
	if err := c.invoke(ctx, methodGetStatus, &GetStatusRequest{ID: id.String()}, resp); err != nil {
		return RequestStatus{}, false, err
	}
	if err := resp.Header.Err(knownErrors...); err != nil {
		return RequestStatus{}, false, err
	}
	return resp.Status, resp.Found, nil
}

func (c *Client) GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error) {
	resp := &GetCurrentConvergenceIDResponse{}
	if err := c.invoke(ctx, methodGetCurrentConvergenceID, &GetCurrentConvergenceIDRequest{}, resp); err != nil {
		return uuid.Nil, false, err
	}
	if err := resp.Header.Err(knownErrors...); err != nil {
		return uuid.Nil, false, err
	}
	if !resp.Found {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(resp.ID)
	if err != nil {
		return uuid.Nil, false, ErrInvalidRequestID.WithCausef("id:%q, err:%v", resp.ID, err)
	}
	return id, true, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
