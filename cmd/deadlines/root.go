package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flybasist/deadlines/internal/app"
	"github.com/flybasist/deadlines/internal/config"
	"github.com/flybasist/deadlines/internal/envreader"
)

func newRootCommand() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "deadlines",
		Short:         "deadlines starts a Telegram client configured from DEADLINES_* variables and waits for events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envreader.LoadDotenv(envFiles...)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default: ./.env if present).")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand())
	return rootCmd
}

// runBootstrap собирает конфигурацию и запускает процесс до сигнала остановки.
func runBootstrap(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, cfg, app.Deps{Version: version})
}
