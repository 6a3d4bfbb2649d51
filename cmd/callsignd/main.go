// Command callsignd runs the mission coordination daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"callsign/internal/config"
	"callsign/internal/daemon"
	"callsign/internal/logging"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("callsignd " + version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "callsignd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, version, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("callsignd starting",
		logging.String("version", version),
		logging.String("config", configPath))
	return d.Run(ctx)
}
