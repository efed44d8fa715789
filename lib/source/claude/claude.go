// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package claude tails Claude Code session transcripts: one
// append-only JSONL file per session under
// ~/.claude/projects/<project>/<session-id>.jsonl.
package claude

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/source"
	"github.com/agentdeck/agentdeck/lib/tailer"
)

const seedTailBytes = 64 * 1024

// headProbeLines bounds the head scan for session context records.
const headProbeLines = 10

type fileState struct {
	cursor    *tailer.Cursor
	sessionID string
	repoPath  string
	title     string
}

// Tailer follows the newest Claude Code transcripts.
type Tailer struct {
	logger  *slog.Logger
	clock   clock.Clock
	root    string
	publish source.Publisher
	limit   int
	files   map[string]*fileState
}

// DefaultRoot returns the Claude Code projects directory, honoring
// CLAUDE_HOME.
func DefaultRoot() string {
	if home := os.Getenv("CLAUDE_HOME"); home != "" {
		return filepath.Join(home, "projects")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// New returns a tailer over root.
func New(logger *slog.Logger, clk clock.Clock, root string, publish source.Publisher) *Tailer {
	return &Tailer{
		logger:  logger.With("source", schema.SourceClaude),
		clock:   clk,
		root:    root,
		publish: publish,
		limit:   tailer.DefaultDiscoverLimit,
		files:   make(map[string]*fileState),
	}
}

func (t *Tailer) Source() schema.Source { return schema.SourceClaude }

// SetFileLimit overrides how many session files are followed at once.
// Non-positive values are ignored.
func (t *Tailer) SetFileLimit(n int) {
	if n > 0 {
		t.limit = n
	}
}

// Poll discovers the newest transcripts, seeds new ones from their
// tail, and publishes events for appended lines on known ones.
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

// seed registers a new transcript. The session id is the filename
// stem; the working directory and title are probed from the head of
// the file. A synthetic discovery event (when a working directory was
// found) plus the most recent parsable tail record make the session
// visible before its next write.
func (t *Tailer) seed(file tailer.DiscoveredFile) {
	state := &fileState{
		cursor:    tailer.NewCursor(file.Path),
		sessionID: strings.TrimSuffix(filepath.Base(file.Path), ".jsonl"),
	}
	t.files[file.Path] = state
	t.probeHead(state)

	if state.repoPath != "" {
		t.publish(schema.Event{
			Source:    schema.SourceClaude,
			SessionID: state.sessionID,
			TsMs:      file.ModTime.UnixMilli(),
			Type:      schema.EventStatus,
			StateHint: schema.StateIdle,
			Text:      "Session discovered",
			RepoPath:  state.repoPath,
			Title:     state.title,
		})
	}

	lines, _, err := tailer.TailLines(file.Path, seedTailBytes)
	if err != nil {
		t.logger.Warn("seed read failed", "path", file.Path, "error", err)
		return
	}
	for i := len(lines) - 1; i >= 0; i-- {
		record, ok := rawjson.Parse([]byte(lines[i]))
		if !ok {
			continue
		}
		event, ok := classifyRecord(record, t.clock.Now())
		if !ok {
			continue
		}
		event.SessionID = state.sessionID
		event.RepoPath = state.repoPath
		event.Title = state.title
		t.publish(event)
		break
	}
	if err := state.cursor.SkipToEnd(); err != nil {
		t.logger.Warn("cursor reset failed", "path", file.Path, "error", err)
	}
}

// probeHead reads the first lines of a transcript for session context:
// the summary title and the working directory most records carry.
func (t *Tailer) probeHead(state *fileState) {
	lines, err := tailer.HeadLines(state.cursor.Path(), headProbeLines)
	if err != nil {
		return
	}
	for _, line := range lines {
		record, ok := rawjson.Parse([]byte(line))
		if !ok {
			continue
		}
		if cwd := rawjson.StringAt(record, "cwd"); cwd != "" && state.repoPath == "" {
			state.repoPath = cwd
		}
		if title := sessionTitle(record); title != "" && state.title == "" {
			state.title = title
		}
	}
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

// emit classifies one line, folding context records (summary titles,
// working directories) into the file state before publishing.
func (t *Tailer) emit(state *fileState, line string) {
	record, ok := rawjson.Parse([]byte(line))
	if !ok {
		return
	}
	if cwd := rawjson.StringAt(record, "cwd"); cwd != "" && state.repoPath == "" {
		state.repoPath = cwd
	}
	if title := sessionTitle(record); title != "" && state.title == "" {
		state.title = title
	}

	event, ok := classifyRecord(record, t.clock.Now())
	if !ok {
		return
	}
	event.SessionID = state.sessionID
	event.RepoPath = state.repoPath
	event.Title = state.title
	t.publish(event)
}

// sessionTitle extracts a display title: the session summary record
// written by the tool, or the slug some records carry.
func sessionTitle(record map[string]any) string {
	if rawjson.StringAt(record, "type") == "summary" {
		return rawjson.StringAt(record, "summary")
	}
	return rawjson.StringAt(record, "slug")
}
