// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Alert kinds. At most one alert per (kind, message) pair exists on an
// entry at any time.
const (
	AlertError     = "error"
	AlertDirty     = "dirty"
	AlertPrPending = "pr-pending"
)

// Alert is a condition surfaced on an agent entry: the agent reported
// an error, the bound repository has uncommitted changes, or an open
// pull request is waiting.
type Alert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	TsMs    int64  `json:"ts_ms"`
}

// GitState is the last-known result of the git status poll for an
// agent's repository. A failed poll carries Error and leaves the other
// fields zero; the entry's remaining data is unaffected.
type GitState struct {
	Branch       string `json:"branch,omitempty"`
	Dirty        bool   `json:"dirty"`
	ChangedFiles int    `json:"changed_files"`
	Ahead        int    `json:"ahead"`
	Behind       int    `json:"behind"`
	Error        string `json:"error,omitempty"`
	CheckedAtMs  int64  `json:"checked_at_ms"`
}

// PrState is the last-known result of the pull-request poll. Available
// is false when the repo-hosting CLI is not installed; that is
// recorded, not treated as an error.
type PrState struct {
	Available   bool   `json:"available"`
	Number      int    `json:"number,omitempty"`
	Title       string `json:"title,omitempty"`
	State       string `json:"state,omitempty"`
	Merged      bool   `json:"merged"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
	CheckedAtMs int64  `json:"checked_at_ms"`
}

// Open reports whether the poll found an open, non-merged pull
// request.
func (p *PrState) Open() bool {
	return p != nil && p.State == "OPEN" && !p.Merged
}

// EventView is the bounded per-entry retention of a normalized event,
// kept for detail views.
type EventView struct {
	TsMs         int64     `json:"ts_ms"`
	Type         EventType `json:"type"`
	StateHint    State     `json:"state_hint"`
	Text         string    `json:"text,omitempty"`
	FilesTouched []string  `json:"files_touched,omitempty"`
}

// AgentView is the read-only projection of one agent entry delivered
// in snapshots.
type AgentView struct {
	Key          string      `json:"key"`
	Source       Source      `json:"source"`
	SessionID    string      `json:"session_id"`
	AgentID      string      `json:"agent_id"`
	DisplayName  string      `json:"display_name"`
	State        State       `json:"state"`
	LastTsMs     int64       `json:"last_ts_ms"`
	LastText     string      `json:"last_text,omitempty"`
	RepoPath     string      `json:"repo_path,omitempty"`
	FilesTouched []string    `json:"files_touched,omitempty"`
	Alerts       []Alert     `json:"alerts"`
	RecentEvents []EventView `json:"recent_events"`
	Git          *GitState   `json:"git,omitempty"`
	Pr           *PrState    `json:"pr,omitempty"`
}

// Summary aggregates the retained snapshot window.
type Summary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Done      int `json:"done"`
	Error     int `json:"error"`
	PrPending int `json:"pr_pending"`
	Alerts    int `json:"alerts"`
}

// Snapshot is the current, decayed, capped, sorted view of all tracked
// agents plus summary counts.
type Snapshot struct {
	Summary Summary     `json:"summary"`
	Agents  []AgentView `json:"agents"`
	NowMs   int64       `json:"now_ms"`
}

// Notification announces a one-time terminal-state transition. Key
// equals the agent's store key; the presentation layer uses it for
// deduplication and animation keys.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    State  `json:"kind"`
	Key     string `json:"key"`
}
