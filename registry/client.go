package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a Directory backed by a remote registry service.
type Client struct {
	register   *connect.Client[structpb.Struct, structpb.Struct]
	deregister *connect.Client[structpb.Struct, structpb.Struct]
	heartbeat  *connect.Client[structpb.Struct, structpb.Struct]
	discover   *connect.Client[structpb.Struct, structpb.Struct]
}

var _ Directory = (*Client)(nil)

// NewClient creates a Client for the registry at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		register:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RegisterProcedure, opts...),
		deregister: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DeregisterProcedure, opts...),
		heartbeat:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+HeartbeatProcedure, opts...),
		discover:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+DiscoverProcedure, opts...),
	}
}

func (c *Client) Register(ctx context.Context, info AgentInfo) (AgentInfo, error) {
	req, err := structpb.NewStruct(map[string]any{"agent": info.ToMap()})
	if err != nil {
		return AgentInfo{}, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	resp, err := c.register.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return AgentInfo{}, fromConnectError(err)
	}

	raw, ok := resp.Msg.AsMap()["agent"].(map[string]any)
	if !ok {
		return AgentInfo{}, fmt.Errorf("%w: register response missing agent", ErrUnavailable)
	}
	return AgentInfoFromMap(raw)
}

func (c *Client) Deregister(ctx context.Context, agentID string) error {
	_, err := c.deregister.CallUnary(ctx, connect.NewRequest(agentIDStruct(agentID)))
	return fromConnectError(err)
}

func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	_, err := c.heartbeat.CallUnary(ctx, connect.NewRequest(agentIDStruct(agentID)))
	return fromConnectError(err)
}

func (c *Client) Discover(ctx context.Context, capability string) ([]AgentInfo, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"capability": structpb.NewStringValue(capability),
	}}

	resp, err := c.discover.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}

	agents, err := agentsFromStruct(resp.Msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return agents, nil
}

func agentIDStruct(agentID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"agent_id": structpb.NewStringValue(agentID),
	}}
}

// fromConnectError maps Connect status codes back onto registry sentinels.
// Anything that is not a registry verdict means the registry could not be
// reached or failed internally.
func fromConnectError(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch connectErr.Code() {
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, connectErr.Message())
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidRegistration, connectErr.Message())
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, connectErr.Error())
	}
}
