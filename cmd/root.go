package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/eddndev/agentic-core/cmd.Version=v1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "agentic-core",
	Short: "agentic-core — the trigger, scheduling and step execution engine behind a messaging flow automation platform",
	Long: "agentic-core runs the execution half of a messaging-automation platform: it matches inbound " +
		"content against flow triggers, admits flows under cooldown/usage/exclusion rules, and dispatches " +
		"their steps with delay and jitter onto an outbound WhatsApp queue. It owns no flow authoring, no " +
		"message transport, and no schema migrations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentic-core %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
