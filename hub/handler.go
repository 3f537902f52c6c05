package hub

import (
	"context"

	"github.com/tailored-agentic-units/sentiment/messaging"
)

type MessageContext struct {
	HubName string
	AgentID string
}

// MessageHandler processes a request delivered to a local agent. A nil
// response with a nil error leaves the requester to time out; a non-nil
// error is answered with a handler_failed error envelope.
type MessageHandler func(
	ctx context.Context,
	message *messaging.Message,
	context *MessageContext,
) (*messaging.Message, error)

// HandleFunc is the single-envelope contract shared by local handlers and
// the Connect agent service.
type HandleFunc func(ctx context.Context, message *messaging.Message) *messaging.Message

// Adapt wraps a HandleFunc as a MessageHandler.
func Adapt(handle HandleFunc) MessageHandler {
	return func(ctx context.Context, message *messaging.Message, _ *MessageContext) (*messaging.Message, error) {
		return handle(ctx, message), nil
	}
}
