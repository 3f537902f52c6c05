package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/observability"
	"github.com/tailored-agentic-units/sentiment/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, clock *fakeClock) *registry.Registry {
	t.Helper()
	r, err := registry.New(
		config.RegistryConfig{LivenessWindow: config.Duration(90 * time.Second)},
		registry.WithClock(clock.Now),
		registry.WithObserver(observability.NoOpObserver{}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func agentInfo(name string, caps ...string) registry.AgentInfo {
	info := registry.AgentInfo{Name: name, Endpoint: "http://" + name}
	for _, c := range caps {
		info.Capabilities = append(info.Capabilities, registry.Capability{Name: c, Version: "1"})
	}
	return info
}

func TestRegistry_RegisterAssignsDefaults(t *testing.T) {
	clock := newFakeClock()
	r := newRegistry(t, clock)

	stored, err := r.Register(context.Background(), agentInfo("news", "fetch_news"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if stored.AgentID == "" {
		t.Error("Register should assign an agent id")
	}
	if stored.Status != registry.StatusActive {
		t.Errorf("Status = %q, want active", stored.Status)
	}
	if !stored.LastHeartbeat.Equal(clock.Now()) {
		t.Errorf("LastHeartbeat = %v, want %v", stored.LastHeartbeat, clock.Now())
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := newRegistry(t, newFakeClock())

	tests := []struct {
		name string
		info registry.AgentInfo
	}{
		{name: "empty name", info: registry.AgentInfo{Name: "  "}},
		{name: "unnamed capability", info: registry.AgentInfo{Name: "a", Capabilities: []registry.Capability{{Version: "1"}}}},
		{name: "unknown status", info: registry.AgentInfo{Name: "a", Status: "sleeping"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(context.Background(), tt.info)
			if !errors.Is(err, registry.ErrInvalidRegistration) {
				t.Errorf("got %v, want ErrInvalidRegistration", err)
			}
		})
	}

	if r.Len() != 0 {
		t.Errorf("rejected registrations should not be stored, Len() = %d", r.Len())
	}
}

func TestRegistry_ReRegisterReplacesCapabilities(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	first, err := r.Register(ctx, agentInfo("multi", "fetch_news", "fetch_social"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	replacement := agentInfo("multi", "fetch_filings")
	replacement.AgentID = first.AgentID
	if _, err := r.Register(ctx, replacement); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}

	if r.Len() != 1 {
		t.Errorf("re-registration should not duplicate, Len() = %d", r.Len())
	}

	for _, capability := range []string{"fetch_news", "fetch_social"} {
		agents, _ := r.Discover(ctx, capability)
		if len(agents) != 0 {
			t.Errorf("Discover(%q) = %d agents, want 0 after replacement", capability, len(agents))
		}
	}

	agents, _ := r.Discover(ctx, "fetch_filings")
	if len(agents) != 1 || agents[0].AgentID != first.AgentID {
		t.Errorf("Discover(fetch_filings) = %+v, want the replaced agent", agents)
	}

	if got := r.Capabilities(); len(got) != 1 || got[0] != "fetch_filings" {
		t.Errorf("Capabilities() = %v, want [fetch_filings]", got)
	}
}

func TestRegistry_Liveness(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := newRegistry(t, clock)

	stale, _ := r.Register(ctx, agentInfo("stale", "fetch_news"))
	fresh, _ := r.Register(ctx, agentInfo("fresh", "fetch_news"))

	clock.Advance(60 * time.Second)
	if err := r.Heartbeat(ctx, fresh.AgentID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	// stale is now 91s old, fresh is 31s old
	clock.Advance(31 * time.Second)

	agents, err := r.Discover(ctx, "fetch_news")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(agents) != 1 || agents[0].AgentID != fresh.AgentID {
		t.Fatalf("Discover returned %+v, want only fresh agent", agents)
	}

	// stale agents stay stored and recover on heartbeat
	if _, err := r.Get(stale.AgentID); err != nil {
		t.Errorf("stale agent should remain stored: %v", err)
	}
	if err := r.Heartbeat(ctx, stale.AgentID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	agents, _ = r.Discover(ctx, "fetch_news")
	if len(agents) != 2 {
		t.Errorf("Discover returned %d agents after heartbeat, want 2", len(agents))
	}
}

func TestRegistry_LivenessWindowBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := newRegistry(t, clock)

	if _, err := r.Register(ctx, agentInfo("edge", "fetch_news")); err != nil {
		t.Fatal(err)
	}

	clock.Advance(90 * time.Second)
	if agents, _ := r.Discover(ctx, "fetch_news"); len(agents) != 1 {
		t.Error("agent exactly at the window edge should be live")
	}

	clock.Advance(time.Nanosecond)
	if agents, _ := r.Discover(ctx, "fetch_news"); len(agents) != 0 {
		t.Error("agent past the window should not be discovered")
	}
}

func TestRegistry_DiscoverFiltering(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	inactive := agentInfo("paused", "fetch_news")
	inactive.Status = registry.StatusInactive

	for _, info := range []registry.AgentInfo{
		agentInfo("zeta", "fetch_news"),
		agentInfo("alpha", "fetch_news", "analyze_sentiment"),
		agentInfo("social", "fetch_social"),
		inactive,
	} {
		if _, err := r.Register(ctx, info); err != nil {
			t.Fatalf("Register(%s) failed: %v", info.Name, err)
		}
	}

	tests := []struct {
		name       string
		capability string
		want       []string
	}{
		{name: "capability sorted by name", capability: "fetch_news", want: []string{"alpha", "zeta"}},
		{name: "single match", capability: "fetch_social", want: []string{"social"}},
		{name: "empty matches all live", capability: "", want: []string{"alpha", "social", "zeta"}},
		{name: "unknown capability", capability: "fetch_weather", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents, err := r.Discover(ctx, tt.capability)
			if err != nil {
				t.Fatalf("Discover failed: %v", err)
			}
			if agents == nil {
				t.Fatal("Discover should return an empty slice, not nil")
			}
			if len(agents) != len(tt.want) {
				t.Fatalf("Discover(%q) returned %d agents, want %d", tt.capability, len(agents), len(tt.want))
			}
			for i, name := range tt.want {
				if agents[i].Name != name {
					t.Errorf("agents[%d].Name = %q, want %q", i, agents[i].Name, name)
				}
			}
		})
	}
}

func TestRegistry_DeregisterPrunesIndex(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	info, _ := r.Register(ctx, agentInfo("news", "fetch_news"))
	if err := r.Deregister(ctx, info.AgentID); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if caps := r.Capabilities(); len(caps) != 0 {
		t.Errorf("Capabilities() = %v, want empty after pruning", caps)
	}
	if _, err := r.Get(info.AgentID); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Get after Deregister = %v, want ErrNotFound", err)
	}
}

func TestRegistry_UnknownAgent(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	if err := r.Deregister(ctx, "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Deregister = %v, want ErrNotFound", err)
	}
	if err := r.Heartbeat(ctx, "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Heartbeat = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	stored, _ := r.Register(ctx, agentInfo("news", "fetch_news"))
	stored.Capabilities[0].Name = "mutated"

	agents, _ := r.Discover(ctx, "fetch_news")
	if len(agents) != 1 || agents[0].Capabilities[0].Name != "fetch_news" {
		t.Error("mutating a returned AgentInfo should not affect the registry")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, newFakeClock())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := r.Register(ctx, agentInfo(fmt.Sprintf("agent-%02d", i), "fetch_news"))
			if err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			_ = r.Heartbeat(ctx, info.AgentID)
			_, _ = r.Discover(ctx, "fetch_news")
			if i%2 == 0 {
				_ = r.Deregister(ctx, info.AgentID)
			}
		}(i)
	}
	wg.Wait()

	agents, _ := r.Discover(ctx, "fetch_news")
	if len(agents) != 25 {
		t.Errorf("Discover returned %d agents, want 25", len(agents))
	}
	if r.Len() != 25 {
		t.Errorf("Len() = %d, want 25", r.Len())
	}
}

func TestNew_UnknownObserver(t *testing.T) {
	_, err := registry.New(config.RegistryConfig{Observer: "nonexistent"})
	if err == nil {
		t.Error("New should fail for an unknown observer")
	}
}

func TestRegistry_Window(t *testing.T) {
	r := newRegistry(t, newFakeClock())
	if got := r.Window(); got != 90*time.Second {
		t.Errorf("Window() = %v, want %v", got, 90*time.Second)
	}

	d, err := registry.New(config.RegistryConfig{}, registry.WithObserver(observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got, want := d.Window(), config.DefaultRegistryConfig().LivenessWindow.Std(); got != want {
		t.Errorf("Window() with zero config = %v, want %v", got, want)
	}
}
