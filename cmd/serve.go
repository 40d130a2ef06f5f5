package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eddndev/agentic-core/internal/app"
	"github.com/eddndev/agentic-core/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ingress loop: consume incoming messages and dispatch flow executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Ping(ctx); err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}

	if err := a.Scheduler.Recover(ctx); err != nil {
		a.Log.Error("recovering running executions failed", "error", err)
	}

	a.Log.Info("agentic-core serving", "incoming_stream", cfg.Redis.IncomingStream, "outgoing_stream", cfg.Redis.OutgoingStream)
	err = a.Ingress.Run(ctx)
	if err != nil && ctx.Err() != nil {
		a.Log.Info("shutting down")
		return nil
	}
	return err
}
