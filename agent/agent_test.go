package agent_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tailored-agentic-units/sentiment/agent"
	"github.com/tailored-agentic-units/sentiment/messaging"
	"github.com/tailored-agentic-units/sentiment/registry"
)

func newsInfo() registry.AgentInfo {
	return registry.AgentInfo{
		Name: "news-agent",
		Capabilities: []registry.Capability{
			{Name: "fetch_news", Version: "1.0"},
		},
	}
}

func newsHandlers() map[string]agent.Handler {
	return map[string]agent.Handler{
		"fetch_news": func(ctx context.Context, payload map[string]any) (any, error) {
			ticker, _ := payload["ticker"].(string)
			switch ticker {
			case "":
				return nil, fmt.Errorf("%w: ticker is required", agent.ErrInvalidPayload)
			case "FAIL":
				return nil, errors.New("news feed down")
			case "PANIC":
				panic("feed parser crashed")
			}
			return map[string]any{"items": []any{map[string]any{"headline": ticker + " rallies"}}}, nil
		},
	}
}

func newNewsAgent(t *testing.T, opts ...agent.Option) *agent.Agent {
	t.Helper()
	a, err := agent.New(newsInfo(), newsHandlers(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	noop := func(ctx context.Context, payload map[string]any) (any, error) { return nil, nil }

	tests := []struct {
		name     string
		info     registry.AgentInfo
		handlers map[string]agent.Handler
		want     error
	}{
		{
			name:     "empty name",
			info:     registry.AgentInfo{},
			handlers: nil,
			want:     agent.ErrEmptyName,
		},
		{
			name:     "declared capability without handler",
			info:     newsInfo(),
			handlers: map[string]agent.Handler{},
			want:     agent.ErrMissingHandler,
		},
		{
			name:     "handler without declared capability",
			info:     newsInfo(),
			handlers: map[string]agent.Handler{"fetch_news": noop, "fetch_social": noop},
			want:     agent.ErrUndeclaredHandler,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agent.New(tt.info, tt.handlers)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_AssignsStableID(t *testing.T) {
	a := newNewsAgent(t)
	if a.ID() == "" {
		t.Fatal("New should assign an agent id")
	}
	if a.Info().AgentID != a.ID() {
		t.Error("Info should carry the assigned id")
	}
}

func TestAgent_Handle(t *testing.T) {
	now := time.Now()
	a := newNewsAgent(t, agent.WithClock(func() time.Time { return now }))

	tests := []struct {
		name     string
		msg      *messaging.Message
		wantType messaging.MessageType
		wantCode string
	}{
		{
			name:     "success",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_news", map[string]any{"ticker": "AAPL"}),
			wantType: messaging.MessageTypeResponse,
		},
		{
			name:     "unknown action",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_weather", nil),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeUnknownAction,
		},
		{
			name:     "invalid payload from handler",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_news", map[string]any{}),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeInvalidPayload,
		},
		{
			name:     "non-object payload",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_news", "AAPL"),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeInvalidPayload,
		},
		{
			name:     "handler error",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_news", map[string]any{"ticker": "FAIL"}),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeHandlerFailed,
		},
		{
			name:     "handler panic",
			msg:      messaging.NewRequest("orchestrator", a.ID(), "fetch_news", map[string]any{"ticker": "PANIC"}),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeHandlerFailed,
		},
		{
			name:     "not a request",
			msg:      messaging.NewEvent("orchestrator", "session.done", nil),
			wantType: messaging.MessageTypeError,
			wantCode: messaging.CodeInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := a.Handle(context.Background(), tt.msg)
			if reply == nil {
				t.Fatal("Handle must always reply")
			}
			if reply.Header.MessageType != tt.wantType {
				t.Fatalf("MessageType = %s, want %s", reply.Header.MessageType, tt.wantType)
			}
			if reply.Body.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", reply.Body.ErrorCode, tt.wantCode)
			}
			if reply.Header.CorrelationID != tt.msg.ID() {
				t.Errorf("CorrelationID = %q, want %q", reply.Header.CorrelationID, tt.msg.ID())
			}
			if reply.Header.ReceiverID != tt.msg.Header.SenderID {
				t.Errorf("ReceiverID = %q, want %q", reply.Header.ReceiverID, tt.msg.Header.SenderID)
			}
		})
	}
}

func TestAgent_HandleExpired(t *testing.T) {
	clock := time.Now()
	a := newNewsAgent(t, agent.WithClock(func() time.Time { return clock }))

	msg := messaging.NewRequest("orchestrator", a.ID(), "fetch_news",
		map[string]any{"ticker": "AAPL"}, messaging.WithTTL(2*time.Second))

	clock = msg.Header.Timestamp.Add(3 * time.Second)
	reply := a.Handle(context.Background(), msg)

	if !reply.IsError() || reply.Body.ErrorCode != messaging.CodeMessageExpired {
		t.Errorf("reply = %s code %q, want message_expired error", reply, reply.Body.ErrorCode)
	}
}
