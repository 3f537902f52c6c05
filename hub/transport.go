package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/sentiment/messaging"
)

const (
	// AgentServiceName is the Connect service every remote worker serves.
	AgentServiceName = "sentiment.agent.v1.AgentService"

	HandleProcedure = "/" + AgentServiceName + "/Handle"
)

// Transport delivers a request envelope to a remote agent and returns its
// reply envelope.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, message *messaging.Message) (*messaging.Message, error)
}

// ConnectTransport delivers envelopes over the agent Connect service. One
// client is kept per endpoint.
type ConnectTransport struct {
	httpClient connect.HTTPClient
	options    []connect.ClientOption

	mu      sync.Mutex
	clients map[string]*connect.Client[structpb.Struct, structpb.Struct]
}

func NewConnectTransport(httpClient connect.HTTPClient, opts ...connect.ClientOption) *ConnectTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ConnectTransport{
		httpClient: httpClient,
		options:    opts,
		clients:    make(map[string]*connect.Client[structpb.Struct, structpb.Struct]),
	}
}

// Deliver sends message to the agent at endpoint. Transport-level failures
// wrap ErrAgentUnreachable; deadline expiry wraps ErrUpstreamTimeout.
func (t *ConnectTransport) Deliver(ctx context.Context, endpoint string, message *messaging.Message) (*messaging.Message, error) {
	request, err := message.ToStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	response, err := t.client(endpoint).CallUnary(ctx, connect.NewRequest(request))
	if err != nil {
		return nil, classifyConnectError(ctx, endpoint, err)
	}

	reply, err := messaging.FromStruct(response.Msg)
	if err != nil {
		return nil, fmt.Errorf("agent at %s sent an invalid reply: %w", endpoint, err)
	}
	return reply, nil
}

func (t *ConnectTransport) client(endpoint string) *connect.Client[structpb.Struct, structpb.Struct] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[endpoint]; ok {
		return c
	}
	c := connect.NewClient[structpb.Struct, structpb.Struct](
		t.httpClient,
		strings.TrimRight(endpoint, "/")+HandleProcedure,
		t.options...,
	)
	t.clients[endpoint] = c
	return c
}

func classifyConnectError(ctx context.Context, endpoint string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, endpoint)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch connect.CodeOf(err) {
	case connect.CodeDeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, endpoint)
	case connect.CodeUnavailable, connect.CodeUnimplemented, connect.CodeUnknown:
		return fmt.Errorf("%w: %s: %v", ErrAgentUnreachable, endpoint, err)
	default:
		return &UpstreamFailure{
			Code:    connect.CodeOf(err).String(),
			Message: err.Error(),
		}
	}
}

// NewAgentHandler exposes handle as the agent Connect service. Undecodable
// envelopes are rejected with CodeInvalidArgument.
func NewAgentHandler(handle HandleFunc, opts ...connect.HandlerOption) (string, http.Handler) {
	handler := connect.NewUnaryHandler(
		HandleProcedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			message, err := messaging.FromStruct(req.Msg)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}

			reply := handle(ctx, message)
			if reply == nil {
				return nil, connect.NewError(connect.CodeInternal, errors.New("agent produced no reply"))
			}

			out, err := reply.ToStruct()
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(out), nil
		},
		opts...,
	)
	return HandleProcedure, handler
}
