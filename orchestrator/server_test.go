package orchestrator_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/orchestrator"
)

func newServer(t *testing.T, origins []string) *httptest.Server {
	t.Helper()
	f := newFixture(t, config.DefaultOrchestratorConfig(), standardAgents(t, nil)...)
	srv := orchestrator.NewServer(f.pipeline, origins, nil)
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

// readSession reads stream messages until the server closes the socket.
func readSession(t *testing.T, conn *websocket.Conn) []orchestrator.StreamMessage {
	t.Helper()
	var messages []orchestrator.StreamMessage
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg orchestrator.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("read failed: %v", err)
			}
			return messages
		}
		messages = append(messages, msg)
	}
}

func TestServer_Session(t *testing.T) {
	server := newServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "Should I buy Apple?"}))

	messages := readSession(t, conn)
	require.NotEmpty(t, messages)

	require.Equal(t, orchestrator.TypeStatus, messages[0].Type)
	last := messages[len(messages)-1]
	require.Equal(t, orchestrator.TypeResult, last.Type)

	terminals := 0
	charts := 0
	for _, msg := range messages {
		if msg.Terminal() {
			terminals++
		}
		if msg.Type == orchestrator.TypeChartUpdate {
			charts++
		}
	}
	require.Equal(t, 1, terminals)
	require.Equal(t, 1, charts)

	report := last.Payload.(map[string]any)
	require.Equal(t, "AAPL", report["ticker"])
	require.EqualValues(t, 28, report["final_score"])
}

func TestServer_TickerFailure(t *testing.T) {
	server := newServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "nothing to see"}))

	messages := readSession(t, conn)
	last := messages[len(messages)-1]
	require.Equal(t, orchestrator.TypeError, last.Type)

	payload := last.Payload.(map[string]any)
	require.Equal(t, "ticker_not_resolved", payload["code"])
	require.Equal(t, "extract_ticker", payload["stage"])
	for _, msg := range messages {
		require.NotEqual(t, orchestrator.TypeChartUpdate, msg.Type)
	}
}

func TestServer_EmptyQuery(t *testing.T) {
	server := newServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "   "}))

	messages := readSession(t, conn)
	require.Len(t, messages, 1)
	require.Equal(t, orchestrator.TypeError, messages[0].Type)
	require.Equal(t, "invalid_query", messages[0].Payload.(map[string]any)["code"])
}

func TestServer_OriginCheck(t *testing.T) {
	server := newServer(t, []string{"dashboard.example.com"})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://dashboard.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	conn.Close()
}

func TestServer_Healthz(t *testing.T) {
	server := newServer(t, nil)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}
