package messaging

import (
	"errors"
	"fmt"
)

// ErrProtocol is the sentinel matched by every ProtocolError.
var ErrProtocol = errors.New("protocol error")

// Error codes carried by error envelopes.
const (
	CodeMessageExpired = "message_expired"
	CodeUnknownAction  = "unknown_action"
	CodeInvalidPayload = "invalid_payload"
	CodeHandlerFailed  = "handler_failed"
)

// ProtocolError reports a structurally invalid envelope.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Field, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolErrorf(field, format string, args ...any) *ProtocolError {
	return &ProtocolError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
