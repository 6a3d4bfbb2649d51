package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"callsign/internal/api"
	"callsign/internal/config"
)

func newStartCommand(loadConfig func() (*config.Config, error), configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the callsignd daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			// Refuse a double start early with a clearer message than
			// the daemon's lock error.
			if client, err := dialDaemon(loadConfig); err == nil {
				client.Close()
				return fmt.Errorf("callsignd is already running")
			}

			binary, err := findDaemonBinary()
			if err != nil {
				return err
			}
			daemonCmd := exec.Command(binary, "--config", *configPath)
			daemonCmd.Stdout = nil
			daemonCmd.Stderr = nil
			if err := daemonCmd.Start(); err != nil {
				return fmt.Errorf("start callsignd: %w", err)
			}
			if err := daemonCmd.Process.Release(); err != nil {
				return fmt.Errorf("detach callsignd: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "callsignd started")
			return nil
		},
	}
}

// findDaemonBinary prefers a callsignd next to this executable, then
// falls back to PATH.
func findDaemonBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "callsignd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	binary, err := exec.LookPath("callsignd")
	if err != nil {
		return "", fmt.Errorf("callsignd binary not found: %w", err)
	}
	return binary, nil
}

func newStopCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "callsignd stopping")
			return nil
		},
	}
}

func newStatusCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and mission status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			renderStatus(cmd, status)
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, status api.DaemonStatus) {
	t := newTableWriter(cmd.OutOrStdout())
	t.AppendRow(table.Row{"Version", status.Version})
	t.AppendRow(table.Row{"PID", status.PID})
	t.AppendRow(table.Row{"Started", status.StartedAt})
	t.AppendRow(table.Row{"Connections", status.Connections})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Script", status.Mission.Script})
	t.AppendRow(table.Row{"State", status.Mission.State})
	t.AppendRow(table.Row{"Step", fmt.Sprintf("%d / %d", status.Mission.Step, status.Mission.Total)})
	t.AppendRow(table.Row{"Gauges", formatGauges(status.Mission.Gauges)})
	t.AppendRow(table.Row{"Lockdown", status.Mission.Lockdown})
	if status.Mission.PendingWait != "" {
		t.AppendRow(table.Row{"Waiting on audio", status.Mission.PendingWait})
	}
	if exp := status.Mission.Expected; exp != nil {
		t.AppendRow(table.Row{"Expecting", fmt.Sprintf("%s from %s", exp.Kind, exp.Role)})
	}
	t.Render()
}

func formatGauges(gauges map[string]int) string {
	if len(gauges) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(gauges))
	for name, value := range gauges {
		parts = append(parts, fmt.Sprintf("%s %d%%", name, value))
	}
	return strings.Join(parts, ", ")
}
