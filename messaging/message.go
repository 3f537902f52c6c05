package messaging

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is stamped on every header.
const ProtocolVersion = "1.0"

type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeEvent    MessageType = "event"
	MessageTypeError    MessageType = "error"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeEvent, MessageTypeError:
		return true
	}
	return false
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority maps a lowercase priority name back to its value.
func ParsePriority(name string) (Priority, error) {
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", name)
}

// DefaultMaxRetries is the retry budget of a freshly created message.
const DefaultMaxRetries = 3

type Header struct {
	MessageID       string
	SenderID        string
	ReceiverID      string
	MessageType     MessageType
	CorrelationID   string
	Timestamp       time.Time
	ProtocolVersion string
}

// Metadata holds delivery hints. A zero TTL means the message never expires.
type Metadata struct {
	Priority   Priority
	TTL        time.Duration
	RetryCount int
	MaxRetries int
	RequireAck bool
	Tags       []string
}

// Body carries the type-specific content. Only the fields belonging to the
// message's type are serialized.
type Body struct {
	Action  string
	Payload any

	Result         any
	Success        bool
	OriginalAction string

	ErrorCode    string
	ErrorMessage string

	EventType string
	EventData any
}

type Message struct {
	Header   Header
	Metadata Metadata
	Body     Body
}

func (msg *Message) ID() string {
	return msg.Header.MessageID
}

func (msg *Message) IsRequest() bool {
	return msg.Header.MessageType == MessageTypeRequest
}

func (msg *Message) IsResponse() bool {
	return msg.Header.MessageType == MessageTypeResponse
}

func (msg *Message) IsError() bool {
	return msg.Header.MessageType == MessageTypeError
}

func (msg *Message) IsEvent() bool {
	return msg.Header.MessageType == MessageTypeEvent
}

// IsExpired reports whether the TTL has elapsed since the header timestamp.
func (msg *Message) IsExpired() bool {
	return msg.IsExpiredAt(time.Now())
}

func (msg *Message) IsExpiredAt(now time.Time) bool {
	if msg.Metadata.TTL <= 0 {
		return false
	}
	return now.Sub(msg.Header.Timestamp) > msg.Metadata.TTL
}

func (msg *Message) ShouldRetry() bool {
	return msg.Metadata.RetryCount < msg.Metadata.MaxRetries
}

// IncrementRetry advances the retry counter. It has no delivery side effect.
func (msg *Message) IncrementRetry() {
	msg.Metadata.RetryCount++
}

// Answers reports whether msg is a response or error correlated to request.
func (msg *Message) Answers(request *Message) bool {
	if !msg.IsResponse() && !msg.IsError() {
		return false
	}
	return msg.Header.CorrelationID == request.Header.MessageID &&
		msg.Header.ReceiverID == request.Header.SenderID
}

func (msg *Message) Clone() *Message {
	clone := *msg
	clone.Metadata.Tags = slices.Clone(msg.Metadata.Tags)
	if payload, ok := msg.Body.Payload.(map[string]any); ok {
		clone.Body.Payload = maps.Clone(payload)
	}
	return &clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, From: %s, To: %s, Type: %s, Correlation: %s}",
		msg.Header.MessageID,
		msg.Header.SenderID,
		msg.Header.ReceiverID,
		msg.Header.MessageType,
		msg.Header.CorrelationID,
	)
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
