// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/lib/schema"
)

type statusParams struct {
	socket string
	json   bool
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show all tracked agents",
		Description: `Show the current snapshot of every tracked agent: state, last
activity, bound repository, and outstanding alerts. Connects to the
running agentdeck-monitor daemon.`,
		Usage: "agentdeck status [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.StringVar(&params.socket, "socket", "", "monitor socket path (default: from config)")
			flags.BoolVar(&params.json, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			client, err := dialMonitor(params.socket)
			if err != nil {
				return err
			}
			defer client.close()

			frame, err := client.expectFrame("snapshot")
			if err != nil {
				return err
			}
			snapshot := frame.Snapshot

			if params.json {
				return cli.WriteJSON(snapshot)
			}

			if len(snapshot.Agents) == 0 {
				fmt.Fprintln(os.Stderr, "No tracked agents.")
				return nil
			}

			fmt.Printf("%d agents: %d active, %d waiting, %d done, %d error\n\n",
				snapshot.Summary.Total,
				snapshot.Summary.Active,
				snapshot.Summary.Waiting,
				snapshot.Summary.Done,
				snapshot.Summary.Error,
			)

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "AGENT\tSTATE\tLAST\tACTIVITY\tREPO\tALERTS\n")
			for _, agent := range snapshot.Agents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					agent.DisplayName,
					agent.State,
					formatAge(snapshot.NowMs, agent.LastTsMs),
					agent.LastText,
					agent.RepoPath,
					formatAlerts(agent.Alerts),
				)
			}
			return tw.Flush()
		},
	}
}

func watchCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Stream snapshot updates and notifications",
		Description: `Stay connected to the monitor and print a line for every snapshot
flush and every notification. Intended for simple terminal consumers
and debugging; interrupt to stop.`,
		Usage: "agentdeck watch [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flags.StringVar(&params.socket, "socket", "", "monitor socket path (default: from config)")
			flags.BoolVar(&params.json, "json", false, "output frames as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			client, err := dialMonitor(params.socket)
			if err != nil {
				return err
			}
			defer client.close()

			for {
				frame, err := client.readFrame()
				if err != nil {
					return err
				}
				if params.json {
					if err := cli.WriteJSON(frame); err != nil {
						return err
					}
					continue
				}
				switch frame.Type {
				case "snapshot":
					summary := frame.Snapshot.Summary
					fmt.Printf("%s  %d agents (%d active, %d waiting, %d alerts)\n",
						time.UnixMilli(frame.Snapshot.NowMs).Format("15:04:05"),
						summary.Total, summary.Active, summary.Waiting, summary.Alerts,
					)
				case "notification":
					fmt.Printf("%s: %s\n", frame.Notification.Title, frame.Notification.Message)
				}
			}
		},
	}
}

// formatAge renders the time since tsMs in the coarsest sensible unit.
func formatAge(nowMs, tsMs int64) string {
	if tsMs <= 0 {
		return "-"
	}
	age := time.Duration(nowMs-tsMs) * time.Millisecond
	switch {
	case age < time.Second:
		return "now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func formatAlerts(alerts []schema.Alert) string {
	if len(alerts) == 0 {
		return ""
	}
	kinds := make([]string, len(alerts))
	for i, alert := range alerts {
		kinds[i] = alert.Kind
	}
	return strings.Join(kinds, ",")
}
