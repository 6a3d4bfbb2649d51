package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callsign/internal/config"
	"callsign/internal/ipc"
)

var version = "0.1.0"

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "callsign",
		Short:         "Control the callsignd mission coordination daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newStartCommand(loadConfig, &configPath),
		newStopCommand(loadConfig),
		newStatusCommand(loadConfig),
		newResetCommand(loadConfig),
		newAdvanceCommand(loadConfig),
		newJournalCommand(loadConfig),
		newScriptCommand(loadConfig),
		newTestNotifyCommand(loadConfig),
		newConfigCommand(&configPath),
	)
	return root
}

// dialDaemon connects to the running daemon's control socket.
func dialDaemon(loadConfig func() (*config.Config, error)) (*ipc.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	return client, nil
}
