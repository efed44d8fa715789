// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/settings"
	"github.com/agentdeck/agentdeck/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			StateDir: filepath.Join(base, "state"),
			Socket:   filepath.Join(base, "state", "monitor.sock"),
		},
		Roots: config.RootsConfig{
			Claude:   filepath.Join(base, "claude"),
			Opencode: filepath.Join(base, "opencode"),
			Codex:    filepath.Join(base, "codex"),
		},
	}
}

// sourcesOff disables every tailer and poller so only the flush loop
// holds a timer, keeping FakeClock bookkeeping deterministic.
var sourcesOff = map[string]any{
	"enableClaude":   false,
	"enableOpencode": false,
	"enableCodex":    false,
	"enableGit":      false,
	"enablePr":       false,
}

func newTestController(t *testing.T) (*Controller, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	c := New(testLogger(), clk, testConfig(t))
	c.UpdateSettings(sourcesOff)
	return c, clk
}

func TestPublishFoldsIntoSnapshot(t *testing.T) {
	c, clk := newTestController(t)

	c.Publish(schema.Event{
		Source:    schema.SourceCodex,
		SessionID: "sess-1",
		TsMs:      clk.Now().UnixMilli(),
		Type:      schema.EventMessage,
		StateHint: schema.StateRunning,
		Text:      "drafting a patch",
	})

	snapshot := c.Snapshot()
	if len(snapshot.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(snapshot.Agents))
	}
	agent := snapshot.Agents[0]
	if agent.State != schema.StateRunning {
		t.Fatalf("state = %q, want running", agent.State)
	}
	if agent.LastText != "drafting a patch" {
		t.Fatalf("last text = %q", agent.LastText)
	}
}

func TestFlushDeliversUpdatesToSubscribers(t *testing.T) {
	c, clk := newTestController(t)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	// The flush runner ticks once immediately on start.
	first := testutil.RequireReceive(t, updates, time.Second, "initial flush")
	if len(first.Snapshot.Agents) != 0 {
		t.Fatalf("initial snapshot has %d agents, want 0", len(first.Snapshot.Agents))
	}

	c.Publish(schema.Event{
		Source:    schema.SourceClaude,
		SessionID: "sess-flush",
		TsMs:      clk.Now().UnixMilli(),
		Type:      schema.EventError,
		StateHint: schema.StateError,
		Text:      "request failed",
	})

	clk.WaitForTimers(1)
	clk.Advance(c.Settings().FlushInterval())

	update := testutil.RequireReceive(t, updates, time.Second, "flush after event")
	if len(update.Snapshot.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(update.Snapshot.Agents))
	}
	if len(update.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(update.Notifications))
	}
	if update.Notifications[0].Title != "Agent error" {
		t.Fatalf("notification title = %q", update.Notifications[0].Title)
	}
}

func TestUpdateSettingsReconcilesRunners(t *testing.T) {
	c, clk := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	clk.WaitForTimers(1)
	if got := runnerNames(c); len(got) != 0 {
		t.Fatalf("runners at start = %v, want none", got)
	}

	c.UpdateSettings(map[string]any{"enableCodex": true})
	c.mu.Lock()
	handle, running := c.runners["codex"]
	c.mu.Unlock()
	if !running {
		t.Fatal("codex runner not started after enable")
	}

	c.UpdateSettings(map[string]any{"enableCodex": false})
	testutil.RequireClosed(t, handle.done, time.Second, "codex runner did not stop")
	if got := runnerNames(c); len(got) != 0 {
		t.Fatalf("runners after disable = %v, want none", got)
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	c, _ := newTestController(t)

	c.UpdateSettings(map[string]any{"flushIntervalMs": int64(2500)})

	loaded, err := settings.Load(c.settingsPath)
	if err != nil {
		t.Fatalf("reload settings: %v", err)
	}
	if loaded.FlushIntervalMs != 2500 {
		t.Fatalf("persisted flushIntervalMs = %d, want 2500", loaded.FlushIntervalMs)
	}
	if loaded.EnableClaude {
		t.Fatal("persisted enableClaude = true, want false")
	}
}

func TestBindRepoPersistsAndSeedsEntries(t *testing.T) {
	c, clk := newTestController(t)

	c.BindRepo(schema.SourceCodex, "sess-bind", "/work/agentdeck")

	loaded, err := settings.LoadBindings(c.bindingsPath)
	if err != nil {
		t.Fatalf("reload bindings: %v", err)
	}
	if loaded["codex:sess-bind"] != "/work/agentdeck" {
		t.Fatalf("persisted binding = %q", loaded["codex:sess-bind"])
	}

	c.Publish(schema.Event{
		Source:    schema.SourceCodex,
		SessionID: "sess-bind",
		TsMs:      clk.Now().UnixMilli(),
		Type:      schema.EventStatus,
		StateHint: schema.StateRunning,
	})
	snapshot := c.Snapshot()
	if len(snapshot.Agents) != 1 || snapshot.Agents[0].RepoPath != "/work/agentdeck" {
		t.Fatalf("snapshot did not pick up binding: %+v", snapshot.Agents)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c, _ := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Stop()
	c.Stop()
}

func runnerNames(c *Controller) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.runners))
	for name := range c.runners {
		names = append(names, name)
	}
	return names
}
