package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"callsign/internal/config"
)

func newResetCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the mission to its first step",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()

			runID, err := client.Reset()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mission reset, new run", runID)
			return nil
		},
	}
}

func newAdvanceCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "advance",
		Short: "Force the mission past the current step",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()

			step, advanced, err := client.ForceAdvance()
			if err != nil {
				return err
			}
			if !advanced {
				fmt.Fprintln(cmd.OutOrStdout(), "mission already complete")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "advanced to step", step)
			return nil
		},
	}
}

func newJournalCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded mission events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := client.Journal(cmd.Context(), runID, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no journal entries")
				return nil
			}

			t := newTableWriter(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Time", "Run", "Kind", "Step", "Trigger", "Role", "Input"})
			for _, entry := range entries {
				t.AppendRow(table.Row{
					entry.CreatedAt,
					shortRunID(entry.RunID),
					entry.Kind,
					entry.Step,
					entry.Trigger,
					entry.Role,
					entry.Input,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "show only entries for this run id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
