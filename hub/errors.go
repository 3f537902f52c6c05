package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamTimeout means no correlated reply arrived before the
	// request deadline. Timeouts are never retried by the hub.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrAgentUnreachable means the request could not be delivered. These
	// failures are retried within the message's retry budget.
	ErrAgentUnreachable = errors.New("agent unreachable")

	ErrHubClosed = errors.New("hub closed")
)

// UpstreamFailure reports an agent that answered with an error envelope or
// an unsuccessful response.
type UpstreamFailure struct {
	AgentID string
	Action  string
	Code    string
	Message string
}

func (e *UpstreamFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent %s failed %s: %s", e.AgentID, e.Action, e.Code)
	}
	return fmt.Sprintf("agent %s failed %s: %s: %s", e.AgentID, e.Action, e.Code, e.Message)
}
