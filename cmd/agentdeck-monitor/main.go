// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// agentdeck-monitor is the activity monitor daemon. It tails the
// on-disk session logs of every enabled agent tool, folds the
// normalized events into the agent store, polls git and pull-request
// status for bound repositories, and serves snapshots to consumers
// over a unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/lib/process"
	"github.com/agentdeck/agentdeck/lib/version"
	"github.com/agentdeck/agentdeck/monitor"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to the daemon config file (default: $AGENTDECK_CONFIG)")
	flag.StringVar(&socketPath, "socket", "", "consumer socket path (overrides the config file)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("agentdeck-monitor " + version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller := monitor.New(logger, clock.Real(), cfg)
	controller.Start(ctx)
	defer controller.Stop()

	server := monitor.NewServer(logger, clock.Real(), controller, cfg.Paths.Socket)
	if err := server.Listen(); err != nil {
		return err
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	logger.Info("monitor running",
		"socket", cfg.Paths.Socket,
		"state_dir", cfg.Paths.StateDir,
		"version", version.Info(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-serveDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	return nil
}
