// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor orchestrates the engine: tailers publishing onto the
// event bus, the store folding events and poller results, a flush loop
// delivering snapshots and notifications to subscribers, and the unix
// socket consumers connect to.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/lib/bus"
	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/lib/gitstatus"
	"github.com/agentdeck/agentdeck/lib/prstatus"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/settings"
	"github.com/agentdeck/agentdeck/lib/source"
	"github.com/agentdeck/agentdeck/lib/source/claude"
	"github.com/agentdeck/agentdeck/lib/source/codex"
	"github.com/agentdeck/agentdeck/lib/source/opencode"
	"github.com/agentdeck/agentdeck/lib/store"
	"github.com/agentdeck/agentdeck/lib/tailer"
)

// updateBufferSize is the channel capacity for each snapshot
// subscriber. At the default 1-second flush cadence this is about a
// minute of backlog before updates are dropped; every snapshot is a
// full state replacement, so a dropped one is made obsolete by the
// next anyway.
const updateBufferSize = 64

// Update is one flush-cycle delivery: the full snapshot plus any
// notifications drained since the previous flush.
type Update struct {
	Snapshot      schema.Snapshot       `json:"snapshot"`
	Notifications []schema.Notification `json:"notifications,omitempty"`
}

type subscriber struct {
	updates chan Update
}

// runnerHandle pairs a cadenced runner with the cancel that stops it.
type runnerHandle struct {
	runner *tailer.Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns the engine's object graph and lifecycle.
type Controller struct {
	logger *slog.Logger
	clock  clock.Clock
	cfg    *config.Config

	bus   *bus.Bus
	store *store.Store

	settingsPath string
	bindingsPath string

	// mu guards current settings and the runner table; reconcile runs
	// under it so enable flips are serialized.
	mu      sync.Mutex
	current settings.Settings
	runners map[string]*runnerHandle
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool

	flush *tailer.Runner

	subMu       sync.RWMutex
	subscribers []*subscriber

	wg sync.WaitGroup
}

// New builds the controller: loads persisted settings and repo
// bindings from the state directory and wires the store onto the bus.
// Corrupt persisted files degrade to defaults with a logged warning;
// the monitor must come up regardless.
func New(logger *slog.Logger, clk clock.Clock, cfg *config.Config) *Controller {
	c := &Controller{
		logger:       logger,
		clock:        clk,
		cfg:          cfg,
		bus:          bus.New(logger),
		store:        store.New(logger, store.Options{MaxTracked: cfg.Limits.MaxTrackedAgents}),
		settingsPath: settings.SettingsPath(cfg.Paths.StateDir),
		bindingsPath: settings.BindingsPath(cfg.Paths.StateDir),
		runners:      make(map[string]*runnerHandle),
	}

	current, err := settings.Load(c.settingsPath)
	if err != nil {
		logger.Warn("settings load failed, using defaults", "path", c.settingsPath, "error", err)
		current = settings.Default()
	}
	c.current = current

	bindings, err := settings.LoadBindings(c.bindingsPath)
	if err != nil {
		logger.Warn("bindings load failed, starting empty", "path", c.bindingsPath, "error", err)
		bindings = nil
	}
	c.store.LoadBindings(bindings)

	c.bus.Subscribe(c.store.ApplyEvent)
	return c
}

// Start launches the flush loop and every runner the current settings
// enable. Runners live until Stop or until a settings update disables
// them.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.runCtx, c.cancel = context.WithCancel(ctx)

	c.flush = tailer.NewRunner("flush", c.logger, c.clock, c.current.FlushInterval(), c.flushOnce)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.flush.Run(c.runCtx)
	}()

	c.reconcileLocked()
	c.logger.Info("monitor started",
		"enabled", c.current.Enabled,
		"flush_interval", c.current.FlushInterval())
}

// Stop cancels every runner and waits for them to finish their current
// tick. Ticks are short and idempotent, so no forced interruption is
// needed.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.cancel()
	for name, handle := range c.runners {
		handle.cancel()
		delete(c.runners, name)
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("monitor stopped")
}

// Settings returns the current sanitized settings.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// UpdateSettings applies a partial patch, persists the result, and
// reconciles the running tailers and pollers: enabling a source starts
// it immediately, disabling stops it and releases its timer, interval
// changes take effect on the next tick cycle.
func (c *Controller) UpdateSettings(patch map[string]any) settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Apply(patch)
	if err := settings.Save(c.settingsPath, c.current); err != nil {
		c.logger.Warn("settings save failed", "path", c.settingsPath, "error", err)
	}
	if c.started {
		if c.flush != nil {
			c.flush.SetInterval(c.current.FlushInterval())
		}
		c.reconcileLocked()
	}
	return c.current
}

// BindRepo records a user-chosen repository path for a session and
// persists the binding table.
func (c *Controller) BindRepo(sourceName schema.Source, sessionID, repoPath string) {
	c.store.SetRepoBinding(sourceName, sessionID, repoPath)
	if err := settings.SaveBindings(c.bindingsPath, c.store.Bindings()); err != nil {
		c.logger.Warn("bindings save failed", "path", c.bindingsPath, "error", err)
	}
}

// Snapshot computes the current snapshot on demand, outside the flush
// cadence. Used by one-shot consumers.
func (c *Controller) Snapshot() schema.Snapshot {
	return c.store.Snapshot(c.clock.Now())
}

// Publish injects an event onto the bus. Exposed for the socket
// server's test surface and for in-process embedding.
func (c *Controller) Publish(event schema.Event) {
	c.bus.Publish(event)
}

// Subscribe registers an update channel fed on every flush. The
// returned function unsubscribes. Sends are non-blocking: a slow
// subscriber loses intermediate snapshots, never blocks the flush
// loop.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	sub := &subscriber{updates: make(chan Update, updateBufferSize)}
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, sub)
	c.subMu.Unlock()

	unsubscribe := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, existing := range c.subscribers {
			if existing == sub {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
	return sub.updates, unsubscribe
}

// flushOnce is the flush runner's tick: snapshot, drain, fan out.
func (c *Controller) flushOnce(context.Context) {
	update := Update{
		Snapshot:      c.store.Snapshot(c.clock.Now()),
		Notifications: c.store.DrainNotifications(),
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subscribers {
		select {
		case sub.updates <- update:
		default:
			// Slow subscriber; the next flush carries newer state.
		}
	}
}

// reconcileLocked aligns the runner table with the current settings.
func (c *Controller) reconcileLocked() {
	desired := map[string]bool{
		"claude":   c.current.Enabled && c.current.EnableClaude,
		"opencode": c.current.Enabled && c.current.EnableOpencode,
		"codex":    c.current.Enabled && c.current.EnableCodex,
		"git":      c.current.Enabled && c.current.EnableGit,
		"pr":       c.current.Enabled && c.current.EnablePr,
	}

	for name, want := range desired {
		handle, running := c.runners[name]
		switch {
		case want && !running:
			c.startRunnerLocked(name)
		case !want && running:
			handle.cancel()
			delete(c.runners, name)
			c.logger.Info("runner stopped", "runner", name)
		case want && running:
			handle.runner.SetInterval(c.intervalFor(name))
		}
	}
}

func (c *Controller) intervalFor(name string) time.Duration {
	switch name {
	case "git":
		return c.current.GitPollInterval()
	case "pr":
		return c.current.PrPollInterval()
	default:
		return c.current.SourcePollInterval()
	}
}

// startRunnerLocked builds the tailer or poller and launches its
// runner goroutine under a per-runner cancel.
func (c *Controller) startRunnerLocked(name string) {
	var (
		poll    func(ctx context.Context)
		cleanup func()
	)
	switch name {
	case "claude":
		root := c.cfg.Roots.Claude
		if root == "" {
			root = claude.DefaultRoot()
		}
		tl := claude.New(c.logger, c.clock, root, source.Publisher(c.bus.Publish))
		tl.SetFileLimit(c.cfg.Limits.MaxFilesPerSource)
		poll = tl.Poll
	case "opencode":
		root := c.cfg.Roots.Opencode
		if root == "" {
			root = opencode.DefaultRoot()
		}
		tl := opencode.New(c.logger, c.clock, root, source.Publisher(c.bus.Publish))
		poll = tl.Poll
		cleanup = func() { tl.Close() }
	case "codex":
		root := c.cfg.Roots.Codex
		if root == "" {
			root = codex.DefaultRoot()
		}
		tl := codex.New(c.logger, c.clock, root, source.Publisher(c.bus.Publish))
		tl.SetFileLimit(c.cfg.Limits.MaxFilesPerSource)
		poll = tl.Poll
	case "git":
		poll = c.pollGit
	case "pr":
		poll = c.pollPr
	default:
		return
	}

	runCtx, cancel := context.WithCancel(c.runCtx)
	handle := &runnerHandle{
		runner: tailer.NewRunner(name, c.logger, c.clock, c.intervalFor(name), poll),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.runners[name] = handle

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(handle.done)
		if cleanup != nil {
			defer cleanup()
		}
		handle.runner.Run(runCtx)
	}()
	c.logger.Info("runner started", "runner", name, "interval", c.intervalFor(name))
}

// pollGit checks every tracked repository and writes the result back
// to the store. Per-repo failures land in the state's Error field.
func (c *Controller) pollGit(ctx context.Context) {
	for _, repo := range c.store.TrackedRepos() {
		if ctx.Err() != nil {
			return
		}
		state := gitstatus.Check(ctx, repo.RepoPath, c.clock.Now())
		if state.Error != "" {
			c.logger.Debug("git poll error", "repo", repo.RepoPath, "error", state.Error)
		}
		c.store.ApplyGitState(repo.Source, repo.SessionID, state)
	}
}

// pollPr checks the pull request for every tracked repository. A
// missing gh CLI is recorded on each entry, not treated as an error.
func (c *Controller) pollPr(ctx context.Context) {
	available := prstatus.Available()
	for _, repo := range c.store.TrackedRepos() {
		if ctx.Err() != nil {
			return
		}
		if !available {
			c.store.ApplyPrState(repo.Source, repo.SessionID, schema.PrState{
				Available:   false,
				CheckedAtMs: c.clock.Now().UnixMilli(),
			})
			continue
		}
		state := prstatus.Check(ctx, repo.RepoPath, c.clock.Now())
		if state.Error != "" {
			c.logger.Debug("pr poll error", "repo", repo.RepoPath, "error", state.Error)
		}
		c.store.ApplyPrState(repo.Source, repo.SessionID, state)
	}
}
