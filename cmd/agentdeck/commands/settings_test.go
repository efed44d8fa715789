// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import "testing"

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch([]string{"enabled=false", "gitPollIntervalMs=60000", "enablePr=true"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if patch["enabled"] != false {
		t.Fatalf("enabled = %v", patch["enabled"])
	}
	if patch["gitPollIntervalMs"] != int64(60000) {
		t.Fatalf("gitPollIntervalMs = %v", patch["gitPollIntervalMs"])
	}
	if patch["enablePr"] != true {
		t.Fatalf("enablePr = %v", patch["enablePr"])
	}
}

func TestParsePatchRejectsMalformed(t *testing.T) {
	for _, arg := range []string{"enabled", "=true", "flushIntervalMs=fast"} {
		if _, err := parsePatch([]string{arg}); err == nil {
			t.Fatalf("no error for %q", arg)
		}
	}
}
