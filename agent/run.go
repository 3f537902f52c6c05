package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/sentiment/registry"
)

const deregisterTimeout = 5 * time.Second

// Run registers the agent with dir, heartbeats until ctx is done, then
// deregisters. A heartbeat answered with ErrNotFound means the registry lost
// the entry (for example after a restart) and triggers re-registration under
// the same id. Other heartbeat failures are logged and retried on the next
// tick.
func (a *Agent) Run(ctx context.Context, dir registry.Directory) error {
	if err := a.register(ctx, dir); err != nil {
		return err
	}

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.deregister(dir)
		case <-ticker.C:
			a.beat(ctx, dir)
		}
	}
}

func (a *Agent) register(ctx context.Context, dir registry.Directory) error {
	stored, err := dir.Register(ctx, a.Info())
	if err != nil {
		return fmt.Errorf("failed to register agent %s: %w", a.Info().Name, err)
	}

	a.mu.Lock()
	a.info.AgentID = stored.AgentID
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "agent registered",
		slog.String("agent_id", stored.AgentID),
		slog.String("name", stored.Name),
		slog.Any("capabilities", stored.CapabilityNames()),
	)
	return nil
}

func (a *Agent) beat(ctx context.Context, dir registry.Directory) {
	err := dir.Heartbeat(ctx, a.ID())
	switch {
	case err == nil:
		return
	case errors.Is(err, registry.ErrNotFound):
		a.logger.WarnContext(ctx, "registry lost agent, re-registering", slog.String("agent_id", a.ID()))
		if err := a.register(ctx, dir); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "re-registration failed", slog.String("error", err.Error()))
		}
	case ctx.Err() == nil:
		a.logger.WarnContext(ctx, "heartbeat failed",
			slog.String("agent_id", a.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) deregister(dir registry.Directory) error {
	ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
	defer cancel()

	err := dir.Deregister(ctx, a.ID())
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("failed to deregister agent %s: %w", a.ID(), err)
	}

	a.logger.InfoContext(ctx, "agent deregistered", slog.String("agent_id", a.ID()))
	return nil
}
