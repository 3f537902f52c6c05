package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/sentiment/agent"
	"github.com/tailored-agentic-units/sentiment/agent/demo"
	"github.com/tailored-agentic-units/sentiment/registry"
)

var (
	agentsHost     string
	agentsBasePort int
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Run the demo agents as remote services",
	Long: "Starts every demo agent on its own port from --base-port upward, registers each with the " +
		"registry at server.registry_url and keeps it alive with heartbeats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup("cmd.agents")
		if err != nil {
			return err
		}

		agents, err := demo.Agents(agent.WithLogger(log), agent.WithConfig(cfg.Agent))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dir := registry.NewClient(http.DefaultClient, cfg.Server.RegistryURL)
		g, ctx := errgroup.WithContext(ctx)

		for i, a := range agents {
			port := strconv.Itoa(agentsBasePort + i)
			a.SetEndpoint(fmt.Sprintf("http://%s", net.JoinHostPort(agentsHost, port)))

			agentLog := log.With("agent", a.Info().Name)
			g.Go(func() error {
				return listen(ctx, net.JoinHostPort("", port), a.Mux(), agentLog)
			})
			g.Go(func() error {
				return a.Run(ctx, dir)
			})
		}

		return g.Wait()
	},
}

func init() {
	agentsCmd.Flags().StringVar(&agentsHost, "host", "localhost", "Host the agents advertise in their endpoints")
	agentsCmd.Flags().IntVar(&agentsBasePort, "base-port", 9001, "First agent port")

	rootCmd.AddCommand(agentsCmd)
}
