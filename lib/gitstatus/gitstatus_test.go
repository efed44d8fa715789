// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package gitstatus

import "testing"

func TestParsePorcelain(t *testing.T) {
	output := "## main...origin/main [ahead 2, behind 1]\n" +
		" M lib/store/store.go\n" +
		"?? notes.txt\n"

	branch, ahead, behind, changed := parsePorcelain(output)
	if branch != "main" {
		t.Errorf("branch = %q", branch)
	}
	if ahead != 2 || behind != 1 {
		t.Errorf("ahead/behind = %d/%d", ahead, behind)
	}
	if changed != 2 {
		t.Errorf("changed = %d", changed)
	}
}

func TestParsePorcelainClean(t *testing.T) {
	branch, ahead, behind, changed := parsePorcelain("## feature/poller\n")
	if branch != "feature/poller" || ahead != 0 || behind != 0 || changed != 0 {
		t.Errorf("got %q %d %d %d", branch, ahead, behind, changed)
	}
}

func TestParsePorcelainSpecialHeaders(t *testing.T) {
	branch, _, _, _ := parsePorcelain("## No commits yet on main\n")
	if branch != "main" {
		t.Errorf("branch = %q", branch)
	}

	branch, _, _, changed := parsePorcelain("## HEAD (no branch)\n M x.go\n")
	if branch != "HEAD (no branch)" {
		t.Errorf("branch = %q", branch)
	}
	if changed != 1 {
		t.Errorf("changed = %d", changed)
	}
}

func TestParsePorcelainAheadOnly(t *testing.T) {
	branch, ahead, behind, _ := parsePorcelain("## work...origin/work [ahead 5]\n")
	if branch != "work" || ahead != 5 || behind != 0 {
		t.Errorf("got %q %d %d", branch, ahead, behind)
	}
}
