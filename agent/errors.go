package agent

import "errors"

var (
	ErrEmptyName = errors.New("agent name is empty")

	// ErrMissingHandler means a declared capability has no handler.
	ErrMissingHandler = errors.New("capability has no handler")

	// ErrUndeclaredHandler means a handler is bound to a capability the
	// agent does not declare.
	ErrUndeclaredHandler = errors.New("handler for undeclared capability")

	// ErrInvalidPayload is returned (wrapped) by handlers rejecting their
	// input. It is answered with the invalid_payload error code rather than
	// handler_failed.
	ErrInvalidPayload = errors.New("invalid payload")
)
