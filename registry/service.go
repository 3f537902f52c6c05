package registry

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified Connect service name.
	ServiceName = "sentiment.registry.v1.RegistryService"

	RegisterProcedure   = "/" + ServiceName + "/Register"
	DeregisterProcedure = "/" + ServiceName + "/Deregister"
	HeartbeatProcedure  = "/" + ServiceName + "/Heartbeat"
	DiscoverProcedure   = "/" + ServiceName + "/Discover"
)

type service struct {
	dir Directory
}

// NewHandler exposes dir as the registry Connect service. The returned path
// is the service prefix to mount the handler under.
func NewHandler(dir Directory, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := &service{dir: dir}

	mux := http.NewServeMux()
	mux.Handle(RegisterProcedure, connect.NewUnaryHandler(RegisterProcedure, svc.register, opts...))
	mux.Handle(DeregisterProcedure, connect.NewUnaryHandler(DeregisterProcedure, svc.deregister, opts...))
	mux.Handle(HeartbeatProcedure, connect.NewUnaryHandler(HeartbeatProcedure, svc.heartbeat, opts...))
	mux.Handle(DiscoverProcedure, connect.NewUnaryHandler(DiscoverProcedure, svc.discover, opts...))

	return "/" + ServiceName + "/", mux
}

// NewServeMux mounts the registry service and a GET /healthz check.
func NewServeMux(dir Directory, opts ...connect.HandlerOption) *http.ServeMux {
	mux := http.NewServeMux()
	path, handler := NewHandler(dir, opts...)
	mux.Handle(path, handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *service) register(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	raw, ok := req.Msg.AsMap()["agent"].(map[string]any)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("agent object is required"))
	}

	info, err := AgentInfoFromMap(raw)
	if err != nil {
		return nil, toConnectError(err)
	}

	stored, err := s.dir.Register(ctx, info)
	if err != nil {
		return nil, toConnectError(err)
	}

	out, err := structpb.NewStruct(map[string]any{"agent": stored.ToMap()})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *service) deregister(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if err := s.dir.Deregister(ctx, agentIDField(req.Msg)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&structpb.Struct{}), nil
}

func (s *service) heartbeat(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if err := s.dir.Heartbeat(ctx, agentIDField(req.Msg)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&structpb.Struct{}), nil
}

func (s *service) discover(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	capability := req.Msg.GetFields()["capability"].GetStringValue()

	agents, err := s.dir.Discover(ctx, capability)
	if err != nil {
		return nil, toConnectError(err)
	}

	out, err := agentsToStruct(agents)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func agentIDField(s *structpb.Struct) string {
	return s.GetFields()["agent_id"].GetStringValue()
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidRegistration):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
