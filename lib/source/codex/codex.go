// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package codex tails Codex rollout logs: one append-only JSONL file
// per session under $CODEX_HOME/sessions, named with a trailing
// session UUID.
package codex

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/source"
	"github.com/agentdeck/agentdeck/lib/tailer"
)

// seedTailBytes bounds how much history a newly discovered rollout
// file contributes. Rollouts grow to many megabytes; only the recent
// tail says anything about current activity.
const seedTailBytes = 64 * 1024

// headProbeLines is how far into a rollout the session_meta record is
// searched for. Codex writes it first, but a generous window costs
// nothing.
const headProbeLines = 10

// rolloutSessionID extracts the session UUID from a rollout filename
// such as rollout-2026-08-30T14-02-11-0199a213-81ac-7063-a018-34c9f8ed1bd6.jsonl.
var rolloutSessionID = regexp.MustCompile(
	`([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\.jsonl$`)

type fileState struct {
	cursor    *tailer.Cursor
	sessionID string
	repoPath  string
}

// Tailer follows the newest Codex rollout files.
type Tailer struct {
	logger  *slog.Logger
	clock   clock.Clock
	root    string
	publish source.Publisher
	limit   int
	files   map[string]*fileState
}

// DefaultRoot returns the Codex sessions directory, honoring
// CODEX_HOME.
func DefaultRoot() string {
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return filepath.Join(home, "sessions")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codex", "sessions")
}

// New returns a tailer over root. An empty or missing root is
// tolerated; Poll simply finds nothing.
func New(logger *slog.Logger, clk clock.Clock, root string, publish source.Publisher) *Tailer {
	return &Tailer{
		logger:  logger.With("source", schema.SourceCodex),
		clock:   clk,
		root:    root,
		publish: publish,
		limit:   tailer.DefaultDiscoverLimit,
		files:   make(map[string]*fileState),
	}
}

func (t *Tailer) Source() schema.Source { return schema.SourceCodex }

// SetFileLimit overrides how many rollout files are followed at once.
// Non-positive values are ignored.
func (t *Tailer) SetFileLimit(n int) {
	if n > 0 {
		t.limit = n
	}
}

// Poll discovers the newest rollout files, seeds newly seen ones from
// their tail, and publishes events for lines appended to known ones.
// Files that fall out of the discovery window are forgotten.
func (t *Tailer) Poll(ctx context.Context) {
	discovered := tailer.Discover(t.root, tailer.MatchExtension(".jsonl"), t.limit)

	live := make(map[string]bool, len(discovered))
	for _, file := range discovered {
		if ctx.Err() != nil {
			return
		}
		live[file.Path] = true
		if state, ok := t.files[file.Path]; ok {
			t.readNew(state)
		} else {
			t.seed(file)
		}
	}
	for path := range t.files {
		if !live[path] {
			delete(t.files, path)
		}
	}
}

// seed registers a newly discovered rollout: session id from the
// filename, working directory from the session_meta head record. A
// long-lived session must not stay invisible until its next write, so
// seeding publishes a synthetic discovery event (when a working
// directory was found) plus the most recent parsable record from a
// bounded tail read. Files without a session id in their name leave no
// state behind and are re-skipped every poll.
func (t *Tailer) seed(file tailer.DiscoveredFile) {
	match := rolloutSessionID.FindStringSubmatch(filepath.Base(file.Path))
	if match == nil {
		return
	}
	state := &fileState{
		cursor:    tailer.NewCursor(file.Path),
		sessionID: match[1],
	}
	state.repoPath = t.probeRepoPath(file.Path)
	t.files[file.Path] = state

	if state.repoPath != "" {
		t.publish(schema.Event{
			Source:    schema.SourceCodex,
			SessionID: state.sessionID,
			TsMs:      file.ModTime.UnixMilli(),
			Type:      schema.EventStatus,
			StateHint: schema.StateIdle,
			Text:      "Session discovered",
			RepoPath:  state.repoPath,
		})
	}

	lines, _, err := tailer.TailLines(file.Path, seedTailBytes)
	if err != nil {
		t.logger.Warn("seed read failed", "path", file.Path, "error", err)
		return
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if event, ok := Classify([]byte(lines[i]), t.clock.Now()); ok {
			event.SessionID = state.sessionID
			event.RepoPath = state.repoPath
			t.publish(event)
			break
		}
	}
	// Live tailing starts where the seed ended.
	if err := state.cursor.SkipToEnd(); err != nil {
		t.logger.Warn("cursor reset failed", "path", file.Path, "error", err)
	}
}

// probeRepoPath reads the session_meta record from the head of the
// rollout for the session's working directory.
func (t *Tailer) probeRepoPath(path string) string {
	lines, err := tailer.HeadLines(path, headProbeLines)
	if err != nil {
		return ""
	}
	for _, line := range lines {
		record, ok := rawjson.Parse([]byte(line))
		if !ok {
			continue
		}
		if cwd := metaCwd(record); cwd != "" {
			return cwd
		}
	}
	return ""
}

func (t *Tailer) readNew(state *fileState) {
	lines, err := state.cursor.ReadNewLines()
	if err != nil {
		t.logger.Warn("read failed", "path", state.cursor.Path(), "error", err)
		return
	}
	for _, line := range lines {
		t.emit(state, line)
	}
}

func (t *Tailer) emit(state *fileState, line string) {
	event, ok := Classify([]byte(line), t.clock.Now())
	if !ok {
		return
	}
	event.SessionID = state.sessionID
	event.RepoPath = state.repoPath
	t.publish(event)
}
