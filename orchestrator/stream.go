package orchestrator

import (
	"sync"
)

// MessageType tags a client stream message.
type MessageType string

const (
	TypeStatus      MessageType = "status"
	TypeLog         MessageType = "log"
	TypeChartUpdate MessageType = "chart_update"
	TypeResult      MessageType = "result"
	TypeError       MessageType = "error"
)

// StreamMessage is one frame of the client stream protocol.
type StreamMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// Terminal reports whether the message ends a session.
func (m StreamMessage) Terminal() bool {
	return m.Type == TypeResult || m.Type == TypeError
}

// Emitter writes stream messages to a client.
type Emitter interface {
	Emit(msg StreamMessage) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(msg StreamMessage) error

func (f EmitterFunc) Emit(msg StreamMessage) error {
	return f(msg)
}

// Stream guards an Emitter for one session. It lets exactly one terminal
// message through, drops everything after it, and swallows write failures:
// the first failed write marks the client gone and later writes are skipped.
type Stream struct {
	emitter Emitter

	mu       sync.Mutex
	gone     bool
	finished bool
	sent     int
	dropped  int
}

func NewStream(emitter Emitter) *Stream {
	return &Stream{emitter: emitter}
}

// Send writes msg unless the client is gone or the session already ended.
// It reports whether the message was written.
func (s *Stream) Send(msg StreamMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		s.dropped++
		return false
	}
	if msg.Terminal() {
		s.finished = true
	}
	if s.gone {
		s.dropped++
		return false
	}

	if err := s.emitter.Emit(msg); err != nil {
		s.gone = true
		s.dropped++
		return false
	}
	s.sent++
	return true
}

// Close marks the client gone. Pending and later writes are dropped.
func (s *Stream) Close() {
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()
}

func (s *Stream) Gone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gone
}

// Finished reports whether a terminal message has been accepted.
func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Counts returns how many messages were written and dropped.
func (s *Stream) Counts() (sent, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped
}

func (s *Stream) status(session *Session) {
	payload := map[string]any{
		"session_id": session.ID,
		"stage":      string(session.Stage),
	}
	if session.Ticker != "" {
		payload["ticker"] = session.Ticker
	}
	s.Send(StreamMessage{Type: TypeStatus, Payload: payload})
}

func (s *Stream) log(session *Session, level, message string) {
	s.Send(StreamMessage{Type: TypeLog, Payload: map[string]any{
		"session_id": session.ID,
		"stage":      string(session.Stage),
		"level":      level,
		"message":    message,
	}})
}
