package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/sentiment/hub"
)

var (
	// ErrCapabilityUnavailable means discovery found no live agent for a
	// capability a stage cannot do without.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrAggregationEmpty means no scorable item reached score calculation.
	// It is reported on the stream as a warning, never as a terminal error.
	ErrAggregationEmpty = errors.New("no scorable items")

	ErrTickerNotResolved   = errors.New("ticker not resolved")
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrClientGone stops the pipeline between stages once the client
	// channel is closed.
	ErrClientGone = errors.New("client disconnected")
)

// StageError attributes a session failure to the stage that raised it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorCode maps a session failure onto the code streamed to clients.
func ErrorCode(err error) string {
	var failure *hub.UpstreamFailure
	switch {
	case errors.Is(err, ErrTickerNotResolved):
		return "ticker_not_resolved"
	case errors.Is(err, ErrCapabilityUnavailable):
		return "capability_unavailable"
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	case errors.Is(err, hub.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.As(err, &failure):
		return "upstream_failure"
	case errors.Is(err, hub.ErrAgentUnreachable):
		return "agent_unreachable"
	case errors.Is(err, ErrClientGone), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
