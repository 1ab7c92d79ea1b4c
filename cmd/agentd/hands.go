package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/hands"
)

func newHandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hands",
		Short: "Inspect Hand manifests",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered Hand manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			discovered, errs := hands.DiscoverHands(cfg.Hands.ManifestDir)
			for _, derr := range errs {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", derr)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAGENT\tSCHEDULE\tAUTONOMY")
			for _, h := range discovered {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					h.ID, h.Name, h.Agent, h.Schedule, h.Autonomy.Level)
			}
			return w.Flush()
		},
	})
	return cmd
}
