package messaging

import (
	"slices"
	"time"
)

// Option adjusts a message during construction.
type Option func(*Message)

func WithPriority(priority Priority) Option {
	return func(msg *Message) { msg.Metadata.Priority = priority }
}

func WithTTL(ttl time.Duration) Option {
	return func(msg *Message) { msg.Metadata.TTL = ttl }
}

func WithMaxRetries(maxRetries int) Option {
	return func(msg *Message) { msg.Metadata.MaxRetries = maxRetries }
}

func WithRequireAck(requireAck bool) Option {
	return func(msg *Message) { msg.Metadata.RequireAck = requireAck }
}

func WithTags(tags ...string) Option {
	return func(msg *Message) { msg.Metadata.Tags = append(msg.Metadata.Tags, tags...) }
}

func newMessage(sender, receiver string, messageType MessageType, opts []Option) *Message {
	msg := &Message{
		Header: Header{
			MessageID:       generateID(),
			SenderID:        sender,
			ReceiverID:      receiver,
			MessageType:     messageType,
			Timestamp:       time.Now().UTC().Round(0),
			ProtocolVersion: ProtocolVersion,
		},
		Metadata: Metadata{
			Priority:   PriorityNormal,
			MaxRetries: DefaultMaxRetries,
			Tags:       []string{},
		},
	}
	for _, opt := range opts {
		opt(msg)
	}
	return msg
}

func NewRequest(sender, receiver, action string, payload any, opts ...Option) *Message {
	msg := newMessage(sender, receiver, MessageTypeRequest, opts)
	msg.Body.Action = action
	msg.Body.Payload = payload
	return msg
}

// NewResponse answers original. The receiver and correlation id are taken
// from the request, and the request's action is echoed as OriginalAction.
func NewResponse(original *Message, sender string, result any, success bool, opts ...Option) *Message {
	msg := newMessage(sender, original.Header.SenderID, MessageTypeResponse, opts)
	msg.Header.CorrelationID = original.Header.MessageID
	msg.Metadata.Priority = original.Metadata.Priority
	msg.Metadata.Tags = slices.Clone(original.Metadata.Tags)
	msg.Body.Result = result
	msg.Body.Success = success
	msg.Body.OriginalAction = original.Body.Action
	return msg
}

func NewError(sender, receiver, code, message, correlationID string, opts ...Option) *Message {
	msg := newMessage(sender, receiver, MessageTypeError, opts)
	msg.Header.CorrelationID = correlationID
	msg.Body.ErrorCode = code
	msg.Body.ErrorMessage = message
	return msg
}

// NewErrorFor builds an error envelope answering request.
func NewErrorFor(request *Message, sender, code, message string, opts ...Option) *Message {
	return NewError(sender, request.Header.SenderID, code, message, request.Header.MessageID, opts...)
}

// NewEvent builds a broadcast event. Events have no receiver.
func NewEvent(sender, eventType string, data any, opts ...Option) *Message {
	msg := newMessage(sender, "", MessageTypeEvent, opts)
	msg.Body.EventType = eventType
	msg.Body.EventData = data
	return msg
}
