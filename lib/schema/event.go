// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "strings"

// Source identifies an agent tool family. Each source has its own
// tailer that understands the tool's on-disk log format.
type Source string

const (
	// SourceClaude is Claude Code: one append-only JSONL file per
	// session under ~/.claude/projects/<project>/.
	SourceClaude Source = "claude"

	// SourceOpencode is opencode: a directory tree of small JSON
	// documents (one per message, one per tool-call part), or an
	// sqlite database in newer versions.
	SourceOpencode Source = "opencode"

	// SourceCodex is Codex: one append-only rollout JSONL file per
	// session under ~/.codex/sessions/.
	SourceCodex Source = "codex"
)

// AllSources lists the known sources in display order.
var AllSources = []Source{SourceClaude, SourceOpencode, SourceCodex}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceClaude, SourceOpencode, SourceCodex:
		return true
	}
	return false
}

// EventType classifies normalized events.
type EventType string

const (
	EventMessage EventType = "message"
	EventTool    EventType = "tool"
	EventCmd     EventType = "cmd"
	EventError   EventType = "error"
	EventStatus  EventType = "status"
)

// State is the six-state classification of an agent's activity. The
// tailers emit a best-effort state hint per event; the store derives
// the displayed state from the hint plus time-based decay.
type State string

const (
	StateIdle     State = "idle"
	StateThinking State = "thinking"
	StateRunning  State = "running"
	StateWaiting  State = "waiting"
	StateDone     State = "done"
	StateError    State = "error"
)

// Terminal reports whether the state triggers a one-time notification
// (done or error).
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Active reports whether the state counts as active in the snapshot
// summary (running or thinking).
func (s State) Active() bool {
	return s == StateRunning || s == StateThinking
}

// Event is the normalized record all source tailers emit. It is
// transient: published once on the bus, folded into the store, and
// retained only inside the store's bounded recent-event window.
type Event struct {
	Source    Source    `json:"source"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	TsMs      int64     `json:"ts_ms"`
	Type      EventType `json:"type"`
	StateHint State     `json:"state_hint"`

	// Text is an optional human-readable activity description,
	// truncated to MaxTextChars by the emitting tailer.
	Text string `json:"text,omitempty"`

	// RepoPath is an optional working-directory hint extracted from
	// the record.
	RepoPath string `json:"repo_path,omitempty"`

	// FilesTouched lists paths referenced by the event.
	FilesTouched []string `json:"files_touched,omitempty"`

	// Title is an optional session label (a prompt first line, a
	// session slug) used for display-name derivation. Not part of the
	// wire snapshot; consumed by the store at fold time.
	Title string `json:"-"`
}

// Key returns the store key for a (source, session) pair:
// "{source}:{session_id}".
func Key(source Source, sessionID string) string {
	return string(source) + ":" + sessionID
}

// MaxTextChars caps activity text carried on events and views. Long
// prompts and tool output are truncated at the tailer boundary so the
// store and every snapshot stay small.
const MaxTextChars = 180

// TruncateText caps text at MaxTextChars runes, appending "..." when
// truncated.
func TruncateText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTextChars {
		return text
	}
	return string(runes[:MaxTextChars]) + "..."
}

// maxTitleChars caps the title portion of a display name.
const maxTitleChars = 56

// DisplayName derives the stable label for an agent entry:
// "<source>: <title>" when a session title is known, falling back to
// the repository basename, then to the first 8 characters of the
// session id.
func DisplayName(source Source, sessionID, title, repoPath string) string {
	if compact := compactTitle(title); compact != "" {
		return string(source) + ": " + compact
	}
	if label := repoLabel(repoPath); label != "" {
		return string(source) + ": " + label
	}
	return string(source) + ": " + shortSession(sessionID)
}

// compactTitle collapses whitespace and caps the title length.
// Returns "" for titles that are empty after compaction.
func compactTitle(title string) string {
	compact := strings.Join(strings.Fields(title), " ")
	if compact == "" {
		return ""
	}
	runes := []rune(compact)
	if len(runes) <= maxTitleChars {
		return compact
	}
	return string(runes[:maxTitleChars]) + "..."
}

// repoLabel returns the basename of a repository path, or "".
func repoLabel(repoPath string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(repoPath), "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return compactTitle(trimmed)
}

func shortSession(sessionID string) string {
	runes := []rune(sessionID)
	if len(runes) <= 8 {
		return sessionID
	}
	return string(runes[:8])
}
