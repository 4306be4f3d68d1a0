package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client calls a remote planner service.
type Client struct {
	conn *grpc.ClientConn // nil when the connection is injected
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to a planner server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close leaves it open.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region calls
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return fromStatus(err)
	}
	return fromStruct(out, resp)
}

// Plan runs a remote planning cycle.
func (c *Client) Plan(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	var res orchestrator.Result
	if err := c.invoke(ctx, methodPlan, req, &res); err != nil {
		return orchestrator.Result{}, fmt.Errorf("plan rpc: %w", err)
	}
	return res, nil
}

// RecordFeedback records an execution outcome remotely and returns the record and reward.
func (c *Client) RecordFeedback(ctx context.Context, planID string, pre, post affect.State, outcome feedback.Outcome) (feedback.Record, float64, error) {
	var resp feedbackResponse
	req := feedbackRequest{PlanID: planID, Pre: pre, Post: post, Outcome: outcome}
	if err := c.invoke(ctx, methodRecordFeedback, req, &resp); err != nil {
		return feedback.Record{}, 0, fmt.Errorf("record feedback rpc: %w", err)
	}
	return resp.Record, resp.Reward, nil
}

// Window fetches remote history records younger than d.
func (c *Client) Window(ctx context.Context, d time.Duration) ([]feedback.Record, error) {
	var resp windowResponse
	if err := c.invoke(ctx, methodWindow, windowRequest{WindowMs: d.Milliseconds()}, &resp); err != nil {
		return nil, fmt.Errorf("window rpc: %w", err)
	}
	return resp.Records, nil
}

// #endregion calls
