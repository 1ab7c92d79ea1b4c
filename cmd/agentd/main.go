// Agentd is a long-running agentic automation daemon: it drives a
// tool-using model loop, executes sandboxed tools under an autonomy policy,
// speaks MCP in both directions, and runs persistent cron and Hands
// schedules.
//
// Usage:
//
//	agentd serve              Start the daemon
//	agentd cron add|list|rm   Manage persistent cron jobs
//	agentd hands list         List discovered Hand manifests
//	agentd version            Show version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Agentic automation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/agentd/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newCronCmd())
	root.AddCommand(newHandsCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd by Fyrsmith Labs\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
