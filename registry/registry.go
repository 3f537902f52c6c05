// Package registry tracks live worker agents and the capabilities they serve.
//
// The Registry is the single source of truth for discovery. Agents register
// with a set of capabilities, keep themselves discoverable through periodic
// heartbeats, and drop out of discovery once their last heartbeat is older
// than the configured liveness window. The capability index is always
// re-derived from the agent table, so an agent id appears under a capability
// exactly when the stored agent declares it.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/observability"
)

// Registry is the in-process Directory. All operations are linearizable
// under a single RWMutex.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]AgentInfo
	index  map[string]map[string]struct{}

	window   time.Duration
	now      func() time.Time
	observer observability.Observer
}

var _ Directory = (*Registry)(nil)

// Option customizes a Registry at construction.
type Option func(*Registry)

// WithClock replaces the time source used for heartbeats and liveness.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithObserver overrides the observer resolved from config.
func WithObserver(observer observability.Observer) Option {
	return func(r *Registry) {
		r.observer = observer
	}
}

// New creates an empty Registry. An unknown observer name in cfg is an error.
func New(cfg config.RegistryConfig, opts ...Option) (*Registry, error) {
	defaults := config.DefaultRegistryConfig()
	defaults.Merge(&cfg)

	observer, err := observability.ResolveObserver(defaults.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	r := &Registry{
		agents:   make(map[string]AgentInfo),
		index:    make(map[string]map[string]struct{}),
		window:   defaults.LivenessWindow.Std(),
		now:      time.Now,
		observer: observer,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Window returns the liveness window.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Register stores or replaces an agent. An empty AgentID is assigned, an
// empty Status defaults to active, and LastHeartbeat is set to now.
// Re-registering an existing id replaces its capability set.
func (r *Registry) Register(ctx context.Context, info AgentInfo) (AgentInfo, error) {
	if err := validate(info); err != nil {
		return AgentInfo{}, err
	}

	info = info.clone()
	if info.AgentID == "" {
		info.AgentID = uuid.NewString()
	}
	if info.Status == "" {
		info.Status = StatusActive
	}

	r.mu.Lock()
	info.LastHeartbeat = r.now()
	_, replaced := r.agents[info.AgentID]
	r.unindex(info.AgentID)
	r.agents[info.AgentID] = info
	for _, c := range info.Capabilities {
		ids, ok := r.index[c.Name]
		if !ok {
			ids = make(map[string]struct{})
			r.index[c.Name] = ids
		}
		ids[info.AgentID] = struct{}{}
	}
	r.mu.Unlock()

	observability.Emit(ctx, r.observer, EventRegister, observability.LevelInfo, "registry", map[string]any{
		"agent_id":     info.AgentID,
		"name":         info.Name,
		"capabilities": info.CapabilityNames(),
		"replaced":     replaced,
	})

	return info.clone(), nil
}

// Deregister removes an agent and its index memberships.
func (r *Registry) Deregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	if _, exists := r.agents[agentID]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	r.unindex(agentID)
	delete(r.agents, agentID)
	r.mu.Unlock()

	observability.Emit(ctx, r.observer, EventDeregister, observability.LevelInfo, "registry", map[string]any{
		"agent_id": agentID,
	})
	return nil
}

// Heartbeat refreshes an agent's liveness.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) error {
	r.mu.Lock()
	info, exists := r.agents[agentID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	info.LastHeartbeat = r.now()
	r.agents[agentID] = info
	r.mu.Unlock()

	observability.Emit(ctx, r.observer, EventHeartbeat, observability.LevelVerbose, "registry", map[string]any{
		"agent_id": agentID,
	})
	return nil
}

// Discover returns the live agents offering capability, sorted by name then
// id. An empty capability matches every live agent; an unknown capability
// matches none.
func (r *Registry) Discover(ctx context.Context, capability string) ([]AgentInfo, error) {
	r.mu.RLock()
	now := r.now()

	var found []AgentInfo
	if capability == "" {
		for _, info := range r.agents {
			if r.live(info, now) {
				found = append(found, info.clone())
			}
		}
	} else {
		for id := range r.index[capability] {
			if info := r.agents[id]; r.live(info, now) {
				found = append(found, info.clone())
			}
		}
	}
	r.mu.RUnlock()

	sortAgents(found)

	observability.Emit(ctx, r.observer, EventDiscover, observability.LevelVerbose, "registry", map[string]any{
		"capability": capability,
		"count":      len(found),
	})

	if found == nil {
		found = []AgentInfo{}
	}
	return found, nil
}

// Get returns the stored entry for an agent regardless of liveness.
func (r *Registry) Get(agentID string) (AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.agents[agentID]
	if !exists {
		return AgentInfo{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return info.clone(), nil
}

// Len returns the number of stored agents, live or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Capabilities returns the sorted names of every indexed capability.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.index))
	for name := range r.index {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// unindex removes agentID from every capability set it belongs to and prunes
// sets left empty. Caller holds the write lock.
func (r *Registry) unindex(agentID string) {
	existing, ok := r.agents[agentID]
	if !ok {
		return
	}
	for _, c := range existing.Capabilities {
		ids := r.index[c.Name]
		delete(ids, agentID)
		if len(ids) == 0 {
			delete(r.index, c.Name)
		}
	}
}

func (r *Registry) live(info AgentInfo, now time.Time) bool {
	return info.Status == StatusActive && now.Sub(info.LastHeartbeat) <= r.window
}

func validate(info AgentInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRegistration)
	}
	for i, c := range info.Capabilities {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: capability %d has no name", ErrInvalidRegistration, i)
		}
	}
	switch info.Status {
	case "", StatusActive, StatusInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRegistration, info.Status)
	}
	return nil
}

func sortAgents(agents []AgentInfo) {
	slices.SortFunc(agents, func(a, b AgentInfo) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.AgentID, b.AgentID)
	})
}
