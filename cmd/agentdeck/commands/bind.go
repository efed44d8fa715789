// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/monitor"
)

func bindRepoCommand() *cli.Command {
	var socket string

	return &cli.Command{
		Name:    "bind-repo",
		Summary: "Bind a repository path to an agent session",
		Description: `Bind a repository working directory to a session so the monitor's git
and pull-request pollers cover it. The binding overrides any
repository path the session's own log hinted at, and it persists
across daemon restarts.`,
		Usage: "agentdeck bind-repo <source> <session-id> <path> [flags]",
		Examples: []cli.Example{
			{
				Description: "Point a codex session at a checkout",
				Command:     "agentdeck bind-repo codex 0199a213-... ~/work/agentdeck",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("bind-repo", pflag.ContinueOnError)
			flags.StringVar(&socket, "socket", "", "monitor socket path (default: from config)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("usage: agentdeck bind-repo <source> <session-id> <path>")
			}
			sourceName := schema.Source(args[0])
			if !sourceName.Valid() {
				return fmt.Errorf("unknown source %q (want claude, opencode, or codex)", args[0])
			}
			repoPath, err := filepath.Abs(args[2])
			if err != nil {
				return fmt.Errorf("resolve path %q: %w", args[2], err)
			}

			client, err := dialMonitor(socket)
			if err != nil {
				return err
			}
			defer client.close()

			// The initial snapshot arrives unconditionally; drain it so
			// the reply wait starts clean.
			if _, err := client.expectFrame("snapshot"); err != nil {
				return err
			}

			if err := client.send(monitor.Control{
				Op:        "bind-repo",
				Source:    string(sourceName),
				SessionID: args[1],
				RepoPath:  repoPath,
			}); err != nil {
				return fmt.Errorf("send bind-repo: %w", err)
			}
			if _, err := client.expectFrame("snapshot"); err != nil {
				return err
			}

			fmt.Printf("bound %s:%s to %s\n", sourceName, args[1], repoPath)
			return nil
		},
	}
}
