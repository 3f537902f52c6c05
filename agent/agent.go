// Package agent is the worker runtime: it binds capability handlers to
// request envelopes, keeps the worker registered and discoverable, and
// serves the agent Connect service.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/hub"
	"github.com/tailored-agentic-units/sentiment/messaging"
	"github.com/tailored-agentic-units/sentiment/registry"
)

// Handler implements one capability. payload is the request payload object;
// the returned value becomes the response result.
type Handler func(ctx context.Context, payload map[string]any) (any, error)

// Agent is a worker serving a fixed dispatch table.
type Agent struct {
	mu   sync.RWMutex
	info registry.AgentInfo

	handlers map[string]Handler

	heartbeat time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Agent)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

func WithConfig(cfg config.AgentConfig) Option {
	return func(a *Agent) {
		merged := config.DefaultAgentConfig()
		merged.Merge(&cfg)
		a.heartbeat = merged.HeartbeatInterval.Std()
	}
}

// WithClock replaces the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New validates handlers against the declared capabilities: every
// capability needs exactly one handler and every handler needs a declared
// capability. An empty AgentID is assigned here so that the worker keeps a
// stable identity across re-registrations.
func New(info registry.AgentInfo, handlers map[string]Handler, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(info.Name) == "" {
		return nil, ErrEmptyName
	}

	declared := make(map[string]struct{}, len(info.Capabilities))
	for _, c := range info.Capabilities {
		declared[c.Name] = struct{}{}
		if handlers[c.Name] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, c.Name)
		}
	}
	for name := range handlers {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndeclaredHandler, name)
		}
	}

	if info.AgentID == "" {
		info.AgentID = uuid.NewString()
	}
	info.Capabilities = slices.Clone(info.Capabilities)

	a := &Agent{
		info:      info,
		handlers:  maps.Clone(handlers),
		heartbeat: config.DefaultAgentConfig().HeartbeatInterval.Std(),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info.AgentID
}

// Info returns the registration the agent presents to a registry.
func (a *Agent) Info() registry.AgentInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info := a.info
	info.Capabilities = slices.Clone(a.info.Capabilities)
	return info
}

// SetEndpoint records the address the agent is reachable at.
func (a *Agent) SetEndpoint(endpoint string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.info.Endpoint = endpoint
}

// Handle answers one request envelope. It never returns nil: expired
// requests, unknown actions, bad payloads and handler failures are all
// answered with an error envelope correlated to the request.
func (a *Agent) Handle(ctx context.Context, msg *messaging.Message) *messaging.Message {
	agentID := a.ID()

	if !msg.IsRequest() {
		return messaging.NewErrorFor(msg, agentID, messaging.CodeInvalidPayload,
			fmt.Sprintf("expected a request, got %s", msg.Header.MessageType))
	}

	if msg.IsExpiredAt(a.now()) {
		return messaging.NewErrorFor(msg, agentID, messaging.CodeMessageExpired,
			fmt.Sprintf("message %s expired", msg.ID()))
	}

	handler, ok := a.handlers[msg.Body.Action]
	if !ok {
		return messaging.NewErrorFor(msg, agentID, messaging.CodeUnknownAction,
			fmt.Sprintf("unknown action %q", msg.Body.Action))
	}

	var payload map[string]any
	switch p := msg.Body.Payload.(type) {
	case nil:
		payload = map[string]any{}
	case map[string]any:
		payload = p
	default:
		return messaging.NewErrorFor(msg, agentID, messaging.CodeInvalidPayload,
			fmt.Sprintf("payload must be an object, got %T", msg.Body.Payload))
	}

	result, err := a.invoke(ctx, handler, payload)
	if err != nil {
		code := messaging.CodeHandlerFailed
		if errors.Is(err, ErrInvalidPayload) {
			code = messaging.CodeInvalidPayload
		}
		a.logger.WarnContext(ctx, "handler failed",
			slog.String("agent_id", agentID),
			slog.String("action", msg.Body.Action),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return messaging.NewErrorFor(msg, agentID, code, err.Error())
	}

	return messaging.NewResponse(msg, agentID, result, true)
}

func (a *Agent) invoke(ctx context.Context, handler Handler, payload map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// Attach serves the agent in-process through h.
func (a *Agent) Attach(h hub.Hub) error {
	return h.RegisterAgent(a.ID(), hub.Adapt(a.Handle))
}
