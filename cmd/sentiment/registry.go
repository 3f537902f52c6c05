package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/sentiment/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Run the service registry",
	Long:  "Serves agent registration, heartbeat and discovery over Connect, plus GET /healthz.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup("cmd.registry")
		if err != nil {
			return err
		}

		dir, err := registry.New(cfg.Registry)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("registry started", "liveness_window", dir.Window())
		return listen(ctx, cfg.Server.RegistryAddr, registry.NewServeMux(dir), log)
	},
}

func init() {
	rootCmd.AddCommand(registryCmd)
}
