// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/monitor"
)

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:    "settings",
		Summary: "Inspect or change monitor settings",
		Subcommands: []*cli.Command{
			settingsGetCommand(),
			settingsSetCommand(),
		},
	}
}

func settingsGetCommand() *cli.Command {
	var socket string

	return &cli.Command{
		Name:    "get",
		Summary: "Print the current monitor settings",
		Usage:   "agentdeck settings get [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flags.StringVar(&socket, "socket", "", "monitor socket path (default: from config)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			client, err := dialMonitor(socket)
			if err != nil {
				return err
			}
			defer client.close()

			if err := client.send(monitor.Control{Op: "get-settings"}); err != nil {
				return fmt.Errorf("send get-settings: %w", err)
			}
			frame, err := client.expectFrame("settings")
			if err != nil {
				return err
			}
			return cli.WriteJSON(frame.Settings)
		},
	}
}

func settingsSetCommand() *cli.Command {
	var socket string

	return &cli.Command{
		Name:    "set",
		Summary: "Change monitor settings",
		Description: `Apply one or more key=value settings changes. Keys use the settings
file's JSON names; values are booleans or integers. The daemon
sanitizes out-of-range values back to their defaults and persists the
result.`,
		Usage: "agentdeck settings set <key=value>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Pause all monitoring",
				Command:     "agentdeck settings set enabled=false",
			},
			{
				Description: "Slow the git poller down to once a minute",
				Command:     "agentdeck settings set gitPollIntervalMs=60000",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
			flags.StringVar(&socket, "socket", "", "monitor socket path (default: from config)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: agentdeck settings set <key=value>...")
			}
			patch, err := parsePatch(args)
			if err != nil {
				return err
			}

			client, err := dialMonitor(socket)
			if err != nil {
				return err
			}
			defer client.close()

			if err := client.send(monitor.Control{Op: "update-settings", Patch: patch}); err != nil {
				return fmt.Errorf("send update-settings: %w", err)
			}
			frame, err := client.expectFrame("settings")
			if err != nil {
				return err
			}
			return cli.WriteJSON(frame.Settings)
		},
	}
}

// parsePatch converts key=value arguments into a settings patch.
// Booleans and integers are the only value types settings carry.
func parsePatch(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid setting %q (want key=value)", arg)
		}
		switch value {
		case "true":
			patch[key] = true
		case "false":
			patch[key] = false
		default:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q for %s (want a boolean or integer)", value, key)
			}
			patch[key] = n
		}
	}
	return patch, nil
}
