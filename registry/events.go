package registry

import "github.com/tailored-agentic-units/sentiment/observability"

const (
	EventRegister   observability.EventType = "registry.register"
	EventDeregister observability.EventType = "registry.deregister"
	EventHeartbeat  observability.EventType = "registry.heartbeat"
	EventDiscover   observability.EventType = "registry.discover"
)
