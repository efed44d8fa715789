// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the agentdeck CLI command tree.
package commands

import (
	"fmt"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/lib/version"
)

// Root builds and returns the complete agentdeck CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "agentdeck",
		Description: `Agentdeck: coding-agent activity monitor.

Talks to the agentdeck-monitor daemon over its unix socket to show
what every tracked agent session is doing, bind repositories for git
and pull-request polling, and adjust monitor settings.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			watchCommand(),
			bindRepoCommand(),
			settingsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("agentdeck %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show all tracked agents",
				Command:     "agentdeck status",
			},
			{
				Description: "Stream updates to the terminal",
				Command:     "agentdeck watch",
			},
			{
				Description: "Bind a repository to a session",
				Command:     "agentdeck bind-repo codex <session-id> ~/work/project",
			},
		},
	}
}
