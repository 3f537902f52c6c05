package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/sentiment/agent"
	"github.com/tailored-agentic-units/sentiment/agent/demo"
	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/hub"
	"github.com/tailored-agentic-units/sentiment/orchestrator"
	"github.com/tailored-agentic-units/sentiment/registry"
)

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the orchestrator against a remote registry",
	Long:  "Serves the websocket session stream at /ws, discovering agents through the registry at server.registry_url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup("cmd.orchestrator")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dir := registry.NewClient(http.DefaultClient, cfg.Server.RegistryURL)
		h := hub.New(ctx, cfg.Hub)
		defer shutdownHub(h, log)

		srv, err := newOrchestratorServer(dir, h, cfg, log)
		if err != nil {
			return err
		}

		log.Info("orchestrator started", "registry", cfg.Server.RegistryURL)
		err = listen(ctx, cfg.Server.OrchestratorAddr, srv.Handler(), log)
		srv.Wait()
		return err
	},
}

var serveDemo bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run registry and orchestrator in one process",
	Long: "Runs an in-process registry (also served over Connect for remote agents) and the orchestrator. " +
		"With --demo the built-in demo agents are attached in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup("cmd.serve")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dir, err := registry.New(cfg.Registry)
		if err != nil {
			return err
		}

		h := hub.New(ctx, cfg.Hub)
		defer shutdownHub(h, log)

		srv, err := newOrchestratorServer(dir, h, cfg, log)
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)

		if serveDemo {
			if cfg.Agent.HeartbeatInterval.Std() >= dir.Window() {
				return fmt.Errorf("agent heartbeat %s must be shorter than the liveness window %s",
					cfg.Agent.HeartbeatInterval, dir.Window())
			}
			agents, err := demo.Agents(agent.WithLogger(log), agent.WithConfig(cfg.Agent))
			if err != nil {
				return err
			}
			for _, a := range agents {
				if err := a.Attach(h); err != nil {
					return fmt.Errorf("attach %s: %w", a.Info().Name, err)
				}
				g.Go(func() error { return a.Run(ctx, dir) })
			}
			log.Info("demo agents attached", "count", len(agents))
		}

		g.Go(func() error {
			return listen(ctx, cfg.Server.RegistryAddr, registry.NewServeMux(dir), log.With("server", "registry"))
		})
		g.Go(func() error {
			err := listen(ctx, cfg.Server.OrchestratorAddr, srv.Handler(), log.With("server", "orchestrator"))
			srv.Wait()
			return err
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Attach the built-in demo agents")

	rootCmd.AddCommand(orchestratorCmd)
	rootCmd.AddCommand(serveCmd)
}

func newOrchestratorServer(dir registry.Directory, h hub.Hub, cfg *config.Config, log *slog.Logger) (*orchestrator.Server, error) {
	pipeline, err := orchestrator.New(dir, h, cfg.Orchestrator, orchestrator.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return orchestrator.NewServer(pipeline, cfg.Server.AllowedOrigins, log), nil
}

func shutdownHub(h hub.Hub, log *slog.Logger) {
	if err := h.Shutdown(5 * time.Second); err != nil {
		log.Warn("hub shutdown incomplete", "error", err)
	}
}
