package hub_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sentiment/hub"
	"github.com/tailored-agentic-units/sentiment/messaging"
	"github.com/tailored-agentic-units/sentiment/registry"
)

func newAgentServer(t *testing.T, handle hub.HandleFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := hub.NewAgentHandler(handle)
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestConnectTransport_RoundTrip(t *testing.T) {
	server := newAgentServer(t, func(ctx context.Context, msg *messaging.Message) *messaging.Message {
		payload := msg.Body.Payload.(map[string]any)
		return messaging.NewResponse(msg, "news-agent", map[string]any{
			"items": []any{map[string]any{"headline": "beats estimates", "ticker": payload["ticker"]}},
		}, true)
	})

	h := createTestHub(t, hub.WithTransport(hub.NewConnectTransport(server.Client())))
	remote := registry.AgentInfo{AgentID: "news-agent", Endpoint: server.URL}

	result, err := h.Call(context.Background(), remote, "fetch_news", map[string]any{"ticker": "MSFT"})
	require.NoError(t, err)

	items := result.(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "MSFT", items[0].(map[string]any)["ticker"])
}

func TestConnectTransport_ErrorEnvelope(t *testing.T) {
	server := newAgentServer(t, func(ctx context.Context, msg *messaging.Message) *messaging.Message {
		return messaging.NewErrorFor(msg, "news-agent", messaging.CodeUnknownAction, "no such action")
	})

	h := createTestHub(t, hub.WithTransport(hub.NewConnectTransport(server.Client())))
	remote := registry.AgentInfo{AgentID: "news-agent", Endpoint: server.URL}

	_, err := h.Call(context.Background(), remote, "fetch_weather", nil)

	var failure *hub.UpstreamFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, messaging.CodeUnknownAction, failure.Code)
}

func TestConnectTransport_Timeout(t *testing.T) {
	server := newAgentServer(t, func(ctx context.Context, msg *messaging.Message) *messaging.Message {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return messaging.NewResponse(msg, "slow", nil, true)
	})

	h := createTestHub(t, hub.WithTransport(hub.NewConnectTransport(server.Client())))
	remote := registry.AgentInfo{AgentID: "slow", Endpoint: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	msg := messaging.NewRequest("test-hub", "slow", "fetch_social", nil)
	_, err := h.Request(ctx, remote, msg)
	require.True(t, errors.Is(err, hub.ErrUpstreamTimeout), "got %v", err)
	require.Zero(t, msg.Metadata.RetryCount)
}

func TestConnectTransport_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := createTestHub(t)
	remote := registry.AgentInfo{AgentID: "gone", Endpoint: url}

	msg := messaging.NewRequest("test-hub", "gone", "fetch_news", nil, messaging.WithMaxRetries(1))
	_, err := h.Request(context.Background(), remote, msg)
	require.True(t, errors.Is(err, hub.ErrAgentUnreachable), "got %v", err)
	require.Equal(t, 1, msg.Metadata.RetryCount)
}
