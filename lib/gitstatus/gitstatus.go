// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitstatus inspects a repository's working tree state by
// shelling out to git. All operations are read-only and carry a
// bounded timeout; a hung or missing git binary degrades to an error
// field on the returned state, never an error from the poller.
package gitstatus

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/lib/schema"
)

// Timeout bounds one git invocation.
const Timeout = 7 * time.Second

// Check runs `git status --porcelain=v1 --branch` in repoPath and
// parses the result. Failures are folded into the Error field of the
// returned state; the caller applies it either way so a broken repo is
// visible rather than stale.
func Check(ctx context.Context, repoPath string, now time.Time) schema.GitState {
	state := schema.GitState{CheckedAtMs: now.UnixMilli()}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain=v1", "--branch")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		state.Error = commandError("git status", err).Error()
		return state
	}

	branch, ahead, behind, changed := parsePorcelain(string(output))
	state.Branch = branch
	state.Ahead = ahead
	state.Behind = behind
	state.ChangedFiles = changed
	state.Dirty = changed > 0
	return state
}

// parsePorcelain reads porcelain v1 output with a --branch header:
//
//	## main...origin/main [ahead 2, behind 1]
//	 M lib/store/store.go
//	?? notes.txt
func parsePorcelain(output string) (branch string, ahead, behind, changed int) {
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			branch, ahead, behind = parseBranchHeader(strings.TrimPrefix(line, "## "))
			continue
		}
		changed++
	}
	return branch, ahead, behind, changed
}

func parseBranchHeader(header string) (branch string, ahead, behind int) {
	rest := header
	if i := strings.Index(rest, " ["); i >= 0 {
		for _, token := range strings.Split(strings.Trim(rest[i+2:], "[]"), ", ") {
			if n, ok := strings.CutPrefix(token, "ahead "); ok {
				ahead, _ = strconv.Atoi(n)
			}
			if n, ok := strings.CutPrefix(token, "behind "); ok {
				behind, _ = strconv.Atoi(n)
			}
		}
		rest = rest[:i]
	}
	branch = rest
	if i := strings.Index(branch, "..."); i >= 0 {
		branch = branch[:i]
	}
	// "## No commits yet on main" and "## HEAD (no branch)" headers.
	if cut, ok := strings.CutPrefix(branch, "No commits yet on "); ok {
		branch = cut
	}
	return branch, ahead, behind
}

// commandError wraps an exec failure, surfacing captured stderr when
// the command ran but exited non-zero.
func commandError(what string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%s: %w (stderr: %s)", what, err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("%s: %w", what, err)
}
