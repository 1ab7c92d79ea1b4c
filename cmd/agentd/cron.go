package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/cron"
)

func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage persistent cron jobs",
	}
	cmd.AddCommand(newCronAddCmd(), newCronListCmd(), newCronRemoveCmd())
	return cmd
}

func openCronStore() (*cron.Store, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cron.OpenStore(cfg.Cron.DBPath)
}

func newCronAddCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <id> <expression> <command>",
		Short: "Add or replace a cron job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCronStore()
			if err != nil {
				return err
			}
			defer store.Close()

			task := cron.Task{
				ID:          args[0],
				Expression:  args[1],
				Command:     args[2],
				Description: description,
			}
			if err := store.AddTask(task); err != nil {
				return err
			}
			fmt.Printf("Added cron job %s\n", task.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "human description")
	return cmd
}

func newCronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cron jobs ordered by next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCronStore()
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.ListTasks()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNEXT RUN\tLAST STATUS\tCOMMAND")
			for _, job := range jobs {
				status := job.LastStatus
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					job.ID, job.NextRun.Format(time.RFC3339), status, job.Command)
			}
			return w.Flush()
		},
	}
}

func newCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a cron job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCronStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.RemoveTask(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no cron job with id %s", args[0])
			}
			fmt.Printf("Removed cron job %s\n", args[0])
			return nil
		},
	}
}
