package registry

import (
	"context"
	"slices"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Capability is a named unit of functionality and the discovery key.
type Capability struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	AgentID       string       `json:"agent_id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Endpoint      string       `json:"endpoint"`
	Capabilities  []Capability `json:"capabilities"`
	Status        Status       `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// CapabilityNames returns the declared capability names in declaration order.
func (a AgentInfo) CapabilityNames() []string {
	names := make([]string, len(a.Capabilities))
	for i, c := range a.Capabilities {
		names[i] = c.Name
	}
	return names
}

func (a AgentInfo) clone() AgentInfo {
	a.Capabilities = slices.Clone(a.Capabilities)
	return a
}

// Directory is the registry surface shared by the in-process Registry and
// the remote Client.
type Directory interface {
	Register(ctx context.Context, info AgentInfo) (AgentInfo, error)
	Deregister(ctx context.Context, agentID string) error
	Heartbeat(ctx context.Context, agentID string) error
	Discover(ctx context.Context, capability string) ([]AgentInfo, error)
}
