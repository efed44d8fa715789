// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package prstatus inspects the pull request attached to a
// repository's current branch through the gh CLI. Absence of gh is a
// recorded condition, not an error: most machines the monitor runs on
// have git but not gh.
package prstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/lib/schema"
)

// Timeout bounds one gh invocation. gh talks to the network, so it
// gets a longer leash than local git.
const Timeout = 12 * time.Second

// Available reports whether the gh CLI is installed.
func Available() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}

type prView struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	State    string `json:"state"`
	MergedAt string `json:"mergedAt"`
	URL      string `json:"url"`
}

// Check runs `gh pr view` for the branch checked out in repoPath. A
// branch with no pull request is a normal result, not an error; gh's
// "no pull requests found" failure is folded into an empty available
// state.
func Check(ctx context.Context, repoPath string, now time.Time) schema.PrState {
	state := schema.PrState{Available: true, CheckedAtMs: now.UnixMilli()}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", "pr", "view",
		"--json", "number,title,state,mergedAt,url")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		if isNoPullRequest(err) {
			return state
		}
		state.Error = commandError("gh pr view", err).Error()
		return state
	}

	var view prView
	if err := json.Unmarshal(output, &view); err != nil {
		state.Error = fmt.Sprintf("parse gh pr view output: %v", err)
		return state
	}
	state.Number = view.Number
	state.Title = view.Title
	state.State = view.State
	state.Merged = view.State == "MERGED" || view.MergedAt != ""
	state.URL = view.URL
	return state
}

// isNoPullRequest matches gh's exit for a branch without a PR.
func isNoPullRequest(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	stderr := strings.ToLower(string(exitErr.Stderr))
	return strings.Contains(stderr, "no pull requests found")
}

func commandError(what string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%s: %w (stderr: %s)", what, err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("%s: %w", what, err)
}
