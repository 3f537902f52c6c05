package orchestrator

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
	wsQueryTimeout    = 30 * time.Second
)

type queryRequest struct {
	Query string `json:"query"`
}

// Server exposes the pipeline over websocket at /ws. Each connection
// carries one session: the client sends {query}, the server streams the
// session and closes after the terminal message.
type Server struct {
	pipeline       *Pipeline
	allowedOrigins []string
	logger         *slog.Logger

	sessions sync.WaitGroup
}

func NewServer(pipeline *Pipeline, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:       pipeline,
		allowedOrigins: allowedOrigins,
		logger:         logger.With("component", "orchestrator.server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleSession)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

// Wait blocks until every in-progress session has finished.
func (s *Server) Wait() {
	s.sessions.Wait()
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.allowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.sessions.Add(1)
	defer s.sessions.Done()

	emitter := &wsEmitter{conn: conn}

	var req queryRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsQueryTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("invalid query frame", "remote_addr", r.RemoteAddr, "error", err)
		closeWS(conn, websocket.CloseUnsupportedData, "expected {\"query\": string}")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	out := NewStream(emitter)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		out.Send(StreamMessage{Type: TypeError, Payload: map[string]any{
			"code":    "invalid_query",
			"message": "query is required",
			"stage":   string(StageReceived),
		}})
		closeWS(conn, websocket.CloseNormalClosure, "session complete")
		return
	}

	// Reads only detect the client going away; further frames are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				out.Close()
				return
			}
		}
	}()

	session := s.pipeline.Run(r.Context(), query, out)

	sent, dropped := out.Counts()
	s.logger.Info("session closed",
		"session_id", session.ID,
		"stage", session.Stage,
		"sent", sent,
		"dropped", dropped)

	if !out.Gone() {
		closeWS(conn, websocket.CloseNormalClosure, "session complete")
	}
}

type wsEmitter struct {
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(msg StreamMessage) error {
	if err := e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return e.conn.WriteJSON(msg)
}

func closeWS(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(origin, candidate) || strings.EqualFold(originHost, candidate) {
				return true
			}
		}
		return false
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.EqualFold(originHost, strings.Trim(host, "[]"))
}
