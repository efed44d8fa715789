// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "top",
		Subcommands: []*Command{
			{
				Name: "child",
				Run: func(args []string) error {
					ran = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"child", "a", "b"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ran) != 2 || ran[0] != "a" || ran[1] != "b" {
		t.Fatalf("child args = %v", ran)
	}
}

func TestExecuteUnknownSubcommand(t *testing.T) {
	root := &Command{
		Name:        "top",
		Subcommands: []*Command{{Name: "child", Run: func([]string) error { return nil }}},
	}

	err := root.Execute([]string{"nope"})
	if err == nil || !strings.Contains(err.Error(), `unknown command "nope"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var verbose bool
	var got []string
	cmd := &Command{
		Name: "leaf",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("leaf", pflag.ContinueOnError)
			flags.BoolVar(&verbose, "verbose", false, "")
			return flags
		},
		Run: func(args []string) error {
			got = args
			return nil
		},
	}

	if err := cmd.Execute([]string{"--verbose", "rest"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !verbose {
		t.Fatal("flag not parsed")
	}
	if len(got) != 1 || got[0] != "rest" {
		t.Fatalf("positional args = %v", got)
	}
}

func TestExecuteHelpFlag(t *testing.T) {
	cmd := &Command{
		Name:    "leaf",
		Summary: "does a thing",
		Run: func([]string) error {
			t.Fatal("run called for --help")
			return nil
		},
	}
	if err := cmd.Execute([]string{"--help"}); err != nil {
		t.Fatalf("help returned error: %v", err)
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name: "top",
		Subcommands: []*Command{
			{Name: "alpha", Summary: "first"},
			{Name: "beta", Summary: "second"},
		},
	}
	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"alpha", "first", "beta", "second"} {
		if !strings.Contains(help, want) {
			t.Fatalf("help missing %q:\n%s", want, help)
		}
	}
}
