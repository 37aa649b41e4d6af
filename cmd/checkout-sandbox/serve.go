package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/checkout/internal/sandbox/app"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox gateway",
		Long: `Run the sandbox gateway, ACS and session notification service.

Configuration is read from the environment (SANDBOX_PORT, PUBLIC_URL,
DATABASE_FILE, PUBLIC_KEYS, ...). --port overrides SANDBOX_PORT.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			application, err := app.New(cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	return cmd
}
