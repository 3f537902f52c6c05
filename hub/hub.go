package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/messaging"
	"github.com/tailored-agentic-units/sentiment/registry"
)

type registration struct {
	AgentID  string
	Handler  MessageHandler
	Channel  *MessageChannel[*messaging.Message]
	LastSeen time.Time
}

type Hub interface {
	RegisterAgent(agentID string, handler MessageHandler) error
	UnregisterAgent(agentID string) error

	// Request delivers message to target and waits for its correlated reply.
	Request(ctx context.Context, target registry.AgentInfo, message *messaging.Message) (*messaging.Message, error)

	// Call builds a request from the hub to target and returns the reply's
	// result.
	Call(ctx context.Context, target registry.AgentInfo, action string, payload any, opts ...messaging.Option) (any, error)

	Name() string
	Metrics() MetricsSnapshot
	Shutdown(timeout time.Duration) error
}

type hub struct {
	name string

	agents      map[string]*registration
	agentsMutex sync.RWMutex

	responseChannels map[string]chan *messaging.Message
	responsesMutex   sync.RWMutex

	transport Transport
	inflight  *semaphore.Weighted

	channelBufferSize int
	defaultTimeout    time.Duration
	retryBackoff      time.Duration

	logger  *slog.Logger
	metrics *Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// Option customizes a hub at construction.
type Option func(*hub)

// WithTransport sets the transport used for agents not registered locally.
func WithTransport(transport Transport) Option {
	return func(h *hub) {
		h.transport = transport
	}
}

func New(ctx context.Context, hubConfig config.HubConfig, opts ...Option) Hub {
	cfg := config.DefaultHubConfig()
	cfg.Merge(&hubConfig)

	hubCtx, cancel := context.WithCancel(ctx)

	h := &hub{
		name:              cfg.Name,
		agents:            make(map[string]*registration),
		responseChannels:  make(map[string]chan *messaging.Message),
		transport:         NewConnectTransport(nil),
		inflight:          semaphore.NewWeighted(cfg.MaxInflight),
		channelBufferSize: cfg.ChannelBufferSize,
		defaultTimeout:    cfg.DefaultTimeout.Std(),
		retryBackoff:      cfg.RetryBackoff.Std(),
		logger:            cfg.Logger,
		metrics:           NewMetrics(),
		ctx:               hubCtx,
		cancel:            cancel,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *hub) Name() string {
	return h.name
}

// RegisterAgent attaches an in-process agent. Requests addressed to its id
// are delivered through its channel instead of the transport.
func (h *hub) RegisterAgent(agentID string, handler MessageHandler) error {
	if agentID == "" {
		return fmt.Errorf("agent id is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required for agent %s", agentID)
	}
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}

	h.agentsMutex.Lock()
	defer h.agentsMutex.Unlock()

	if _, exists := h.agents[agentID]; exists {
		return fmt.Errorf("agent already registered: %s", agentID)
	}

	reg := &registration{
		AgentID:  agentID,
		Handler:  handler,
		Channel:  NewMessageChannel[*messaging.Message](h.ctx, h.channelBufferSize),
		LastSeen: time.Now(),
	}

	h.agents[agentID] = reg
	h.metrics.RecordLocalAgent(1)

	h.workers.Add(1)
	go h.serve(reg)

	h.logger.DebugContext(
		h.ctx,
		"agent registered",
		slog.String("hub_name", h.name),
		slog.String("agent_id", agentID),
	)

	return nil
}

func (h *hub) UnregisterAgent(agentID string) error {
	h.agentsMutex.Lock()
	reg, exists := h.agents[agentID]
	if exists {
		delete(h.agents, agentID)
		reg.Channel.Close()
	}
	h.agentsMutex.Unlock()

	if !exists {
		return fmt.Errorf("agent not found: %s", agentID)
	}

	h.metrics.RecordLocalAgent(-1)
	h.logger.DebugContext(
		h.ctx,
		"agent unregistered",
		slog.String("hub_name", h.name),
		slog.String("agent_id", agentID),
	)

	return nil
}

func (h *hub) Call(ctx context.Context, target registry.AgentInfo, action string, payload any, opts ...messaging.Option) (any, error) {
	message := messaging.NewRequest(h.name, target.AgentID, action, payload, opts...)
	reply, err := h.Request(ctx, target, message)
	if err != nil {
		return nil, err
	}
	return reply.Body.Result, nil
}

// Request blocks for one in-flight slot, then delivers message and waits for
// the correlated reply. Without a caller deadline the hub's default timeout
// applies. Undeliverable requests are resent while message.ShouldRetry();
// timeouts and agent-reported failures are returned as is.
func (h *hub) Request(ctx context.Context, target registry.AgentInfo, message *messaging.Message) (*messaging.Message, error) {
	if h.ctx.Err() != nil {
		return nil, ErrHubClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.defaultTimeout)
		defer cancel()
	}

	if err := h.inflight.Acquire(ctx, 1); err != nil {
		return nil, h.waitError(ctx, message, target)
	}
	h.metrics.RecordInFlight(1)
	defer func() {
		h.metrics.RecordInFlight(-1)
		h.inflight.Release(1)
	}()

	for {
		h.metrics.RecordRequestSent()
		reply, err := h.deliver(ctx, target, message)

		if err == nil {
			h.metrics.RecordResponseRecv()
			return h.evaluate(target, message, reply)
		}

		if !errors.Is(err, ErrAgentUnreachable) || !message.ShouldRetry() {
			if errors.Is(err, ErrUpstreamTimeout) {
				h.metrics.RecordTimeout()
			} else {
				h.metrics.RecordFailure()
			}
			return nil, err
		}

		message.IncrementRetry()
		h.metrics.RecordRetry()
		h.logger.WarnContext(
			ctx,
			"retrying undeliverable request",
			slog.String("hub_name", h.name),
			slog.String("message_id", message.ID()),
			slog.String("agent_id", target.AgentID),
			slog.Int("retry_count", message.Metadata.RetryCount),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(h.retryBackoff):
		case <-ctx.Done():
			h.metrics.RecordTimeout()
			return nil, h.waitError(ctx, message, target)
		}
	}
}

func (h *hub) deliver(ctx context.Context, target registry.AgentInfo, message *messaging.Message) (*messaging.Message, error) {
	h.agentsMutex.RLock()
	reg, local := h.agents[target.AgentID]
	h.agentsMutex.RUnlock()

	if local {
		return h.deliverLocal(ctx, reg, target, message)
	}
	if target.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s has no endpoint", ErrAgentUnreachable, target.AgentID)
	}

	reply, err := h.transport.Deliver(ctx, target.Endpoint, message)
	if err != nil {
		var failure *UpstreamFailure
		if errors.As(err, &failure) {
			failure.AgentID = target.AgentID
			failure.Action = message.Body.Action
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, h.waitError(ctx, message, target)
		}
		return nil, err
	}
	return reply, nil
}

func (h *hub) deliverLocal(ctx context.Context, reg *registration, target registry.AgentInfo, message *messaging.Message) (*messaging.Message, error) {
	responseChannel := make(chan *messaging.Message, 1)

	h.responsesMutex.Lock()
	h.responseChannels[message.ID()] = responseChannel
	h.responsesMutex.Unlock()

	defer func() {
		h.responsesMutex.Lock()
		delete(h.responseChannels, message.ID())
		h.responsesMutex.Unlock()
	}()

	if err := reg.Channel.Send(ctx, message.Clone()); err != nil {
		if errors.Is(err, ErrHubClosed) {
			return nil, fmt.Errorf("%w: %s: %v", ErrAgentUnreachable, target.AgentID, err)
		}
		return nil, h.waitError(ctx, message, target)
	}

	select {
	case response := <-responseChannel:
		return response, nil
	case <-ctx.Done():
		return nil, h.waitError(ctx, message, target)
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

// evaluate turns a correlated reply into a result or an UpstreamFailure.
func (h *hub) evaluate(target registry.AgentInfo, request, reply *messaging.Message) (*messaging.Message, error) {
	if !reply.Answers(request) {
		h.metrics.RecordFailure()
		return nil, &UpstreamFailure{
			AgentID: target.AgentID,
			Action:  request.Body.Action,
			Code:    "correlation_mismatch",
			Message: fmt.Sprintf("reply %s does not answer %s", reply.ID(), request.ID()),
		}
	}

	if reply.IsError() {
		h.metrics.RecordFailure()
		return nil, &UpstreamFailure{
			AgentID: target.AgentID,
			Action:  request.Body.Action,
			Code:    reply.Body.ErrorCode,
			Message: reply.Body.ErrorMessage,
		}
	}

	if !reply.Body.Success {
		h.metrics.RecordFailure()
		return nil, &UpstreamFailure{
			AgentID: target.AgentID,
			Action:  request.Body.Action,
			Code:    "unsuccessful",
			Message: fmt.Sprintf("%v", reply.Body.Result),
		}
	}

	return reply, nil
}

// waitError distinguishes a deadline from caller cancellation.
func (h *hub) waitError(ctx context.Context, message *messaging.Message, target registry.AgentInfo) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s to %s", ErrUpstreamTimeout, message.Body.Action, target.AgentID)
	}
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	return fmt.Errorf("request cancelled: %w", ctx.Err())
}

func (h *hub) Metrics() MetricsSnapshot {
	return h.metrics.Snapshot()
}

func (h *hub) Shutdown(timeout time.Duration) error {
	h.logger.DebugContext(
		h.ctx,
		"shutting down hub",
		slog.String("hub_name", h.name),
	)
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("hub shutdown timeout after %v", timeout)
	}
}

// serve receives messages for one local agent until its channel closes.
func (h *hub) serve(reg *registration) {
	defer h.workers.Done()

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		message, err := reg.Channel.Receive(h.ctx)
		if err != nil {
			return
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			h.handleMessage(reg, message)
		}()
	}
}

func (h *hub) handleMessage(reg *registration, message *messaging.Message) {
	msgCtx := &MessageContext{
		HubName: h.name,
		AgentID: reg.AgentID,
	}

	response, err := reg.Handler(h.ctx, message, msgCtx)
	if err != nil {
		h.logger.ErrorContext(
			h.ctx,
			"message handler failed",
			slog.String("hub_name", h.name),
			slog.String("agent_id", reg.AgentID),
			slog.String("from", message.Header.SenderID),
			slog.String("error", err.Error()),
		)
		response = messaging.NewErrorFor(message, reg.AgentID, messaging.CodeHandlerFailed, err.Error())
	}

	if response == nil {
		return
	}

	h.responsesMutex.RLock()
	respChan, exists := h.responseChannels[response.Header.CorrelationID]
	h.responsesMutex.RUnlock()

	if !exists {
		h.metrics.RecordLateResponse()
		h.logger.DebugContext(
			h.ctx,
			"dropping late response",
			slog.String("hub_name", h.name),
			slog.String("agent_id", reg.AgentID),
			slog.String("correlation_id", response.Header.CorrelationID),
		)
		return
	}

	select {
	case respChan <- response:
	default:
	}
}
