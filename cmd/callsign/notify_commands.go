package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callsign/internal/config"
)

func newTestNotifyCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(loadConfig)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.TestNotification(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
			return nil
		},
	}
}
