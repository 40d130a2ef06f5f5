package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eddndev/agentic-core/internal/app"
	"github.com/eddndev/agentic-core/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity to Postgres and Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) error {
	fmt.Printf("agentic-core doctor (%s)\n\n", Version)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("  Config:   FAILED (%s)\n", err)
		return err
	}
	fmt.Println("  Config:   OK")
	fmt.Printf("    %-18s %s\n", "Redis URL:", cfg.Redis.URL)
	fmt.Printf("    %-18s %s\n", "Incoming stream:", cfg.Redis.IncomingStream)
	fmt.Printf("    %-18s %s\n", "Outgoing stream:", cfg.Redis.OutgoingStream)
	fmt.Printf("    %-18s %d\n", "DB max conns:", cfg.Database.MaxOpenConns)

	a, err := app.Build(cfg)
	if err != nil {
		fmt.Printf("  Build:    FAILED (%s)\n", err)
		return err
	}
	defer a.Close()

	if err := a.Ping(ctx); err != nil {
		fmt.Printf("  Connectivity: FAILED (%s)\n", err)
		return err
	}
	fmt.Println("  Connectivity: OK (database + redis reachable)")
	return nil
}
