// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the authoritative in-memory state of the monitor
// engine: one entry per (source, session) key, folded from the
// normalized event stream, decorated with poller results, subject to
// time-based decay, and the source of deduplicated notifications and
// periodic snapshots.
//
// Many independent timers (tailers, pollers, the flush loop) converge
// on one store; a single mutex serializes every mutation. Folds are
// commutative per key, so interleaving between different sources is
// safe by construction; the lock only guards the map and slices.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/lib/schema"
)

// Decay thresholds. Many agent tools stop writing the moment a turn
// ends, so a silent session must be downgraded synthetically or it
// would appear running forever. Two stages let the UI distinguish
// "likely deciding its next move" (idle) from "abandoned" (done).
const (
	// DefaultIdleAfter is the silence after which running, thinking,
	// or waiting decays to idle.
	DefaultIdleAfter = 20 * time.Second

	// DefaultDoneAfter is the silence after which idle decays to done.
	DefaultDoneAfter = 90 * time.Second
)

// DefaultMaxTracked is the snapshot window size. Entries that fall
// outside it are evicted entirely, bounding memory.
const DefaultMaxTracked = 20

// Per-entry retention caps.
const (
	maxFilesTouched = 20
	maxAlerts       = 10
	maxRecentEvents = 20
)

// Placeholder texts that decay may normalize. Real activity text is
// never rewritten.
const (
	placeholderThinking = "Thinking"
	placeholderIdle     = "Idle"
	textNoActivity      = "No recent activity"
)

// Options tune the store. Zero values select the defaults.
type Options struct {
	IdleAfter  time.Duration
	DoneAfter  time.Duration
	MaxTracked int
}

// TrackedRepo names one live entry's bound repository, the unit of
// work for the git and PR pollers.
type TrackedRepo struct {
	Source    schema.Source
	SessionID string
	RepoPath  string
}

// entry is the mutable per-agent state. Owned exclusively by the
// store; nothing outside this package sees it directly.
type entry struct {
	source      schema.Source
	sessionID   string
	agentID     string
	displayName string
	title       string

	state    schema.State
	lastTsMs int64
	lastText string
	repoPath string

	filesTouched []string // most recent first, deduplicated
	alerts       []schema.Alert
	recentEvents []schema.EventView // most recent first

	git *schema.GitState
	pr  *schema.PrState

	// lastNotified is the terminal state most recently announced for
	// this entry, or "" when the entry has since left terminal
	// territory. Guards the notification-once law.
	lastNotified schema.State
}

// Store folds events and poller results into per-agent entries.
type Store struct {
	logger *slog.Logger

	idleAfter  time.Duration
	doneAfter  time.Duration
	maxTracked int

	// mu is never held across I/O or callbacks; every critical
	// section is a pure in-memory fold.
	mu       sync.Mutex
	entries  map[string]*entry
	bindings map[string]string
	pending  []schema.Notification
}

// New returns an empty store.
func New(logger *slog.Logger, options Options) *Store {
	if options.IdleAfter <= 0 {
		options.IdleAfter = DefaultIdleAfter
	}
	if options.DoneAfter <= 0 {
		options.DoneAfter = DefaultDoneAfter
	}
	if options.MaxTracked <= 0 {
		options.MaxTracked = DefaultMaxTracked
	}
	return &Store{
		logger:     logger,
		idleAfter:  options.IdleAfter,
		doneAfter:  options.DoneAfter,
		maxTracked: options.MaxTracked,
		entries:    make(map[string]*entry),
		bindings:   make(map[string]string),
	}
}

// ApplyEvent folds one normalized event. Creates the entry on first
// sight of a key, then mutates: the latest-activity timestamp only
// moves forward (events may arrive out of order across files), text is
// replaced only by non-empty text, touched files are merged under the
// cap, the error alert mirrors whether this event was an error, and a
// transition into done or error enqueues exactly one notification.
func (s *Store) ApplyEvent(event schema.Event) {
	if !event.Source.Valid() || event.SessionID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := schema.Key(event.Source, event.SessionID)
	e, ok := s.entries[key]
	if !ok {
		e = s.newEntryLocked(key, event)
		s.entries[key] = e
	}

	if event.AgentID != "" {
		e.agentID = event.AgentID
	}
	if e.title == "" && event.Title != "" {
		e.title = event.Title
	}
	if e.repoPath == "" && event.RepoPath != "" {
		e.repoPath = event.RepoPath
	}
	if event.TsMs > e.lastTsMs {
		e.lastTsMs = event.TsMs
	}

	// State reflects the most recently applied event, not the most
	// recently timestamped one. Out-of-order arrival across files is
	// tolerated; re-sorting would need an unbounded buffer.
	e.state = event.StateHint
	if event.Text != "" {
		e.lastText = schema.TruncateText(event.Text)
	}

	e.mergeFiles(event.FilesTouched)
	e.setErrorAlert(event)
	e.pushRecent(event)

	s.maybeNotifyLocked(e, event.StateHint)
}

// newEntryLocked creates the one-and-only entry for a key. The display
// name is derived here, once: from the event's title if present, else
// the repo binding or event repo hint, else the session id.
func (s *Store) newEntryLocked(key string, event schema.Event) *entry {
	repoPath := event.RepoPath
	if bound, ok := s.bindings[key]; ok && bound != "" {
		repoPath = bound
	}
	agentID := event.AgentID
	if agentID == "" {
		agentID = event.SessionID
	}
	return &entry{
		source:      event.Source,
		sessionID:   event.SessionID,
		agentID:     agentID,
		title:       event.Title,
		displayName: schema.DisplayName(event.Source, event.SessionID, event.Title, repoPath),
		state:       event.StateHint,
		repoPath:    repoPath,
	}
}

// mergeFiles deduplicates and prepends newly touched files, newest
// first, keeping the cap.
func (e *entry) mergeFiles(files []string) {
	for _, file := range files {
		if file == "" {
			continue
		}
		for i, existing := range e.filesTouched {
			if existing == file {
				e.filesTouched = append(e.filesTouched[:i], e.filesTouched[i+1:]...)
				break
			}
		}
		e.filesTouched = append([]string{file}, e.filesTouched...)
	}
	if len(e.filesTouched) > maxFilesTouched {
		e.filesTouched = e.filesTouched[:maxFilesTouched]
	}
}

// setErrorAlert keeps the error alert in lockstep with the latest
// event: present iff that event was itself an error, replaced on each
// new error, cleared by the first non-error event.
func (e *entry) setErrorAlert(event schema.Event) {
	e.removeAlerts(schema.AlertError)
	if event.StateHint != schema.StateError {
		return
	}
	message := event.Text
	if message == "" {
		message = "Error detected"
	}
	e.addAlert(schema.Alert{
		Kind:    schema.AlertError,
		Message: schema.TruncateText(message),
		TsMs:    event.TsMs,
	})
}

func (e *entry) removeAlerts(kind string) {
	kept := e.alerts[:0]
	for _, alert := range e.alerts {
		if alert.Kind != kind {
			kept = append(kept, alert)
		}
	}
	e.alerts = kept
}

// addAlert appends an alert unless an identical (kind, message) pair
// already exists, keeping the cap by dropping the oldest.
func (e *entry) addAlert(alert schema.Alert) {
	for _, existing := range e.alerts {
		if existing.Kind == alert.Kind && existing.Message == alert.Message {
			return
		}
	}
	e.alerts = append(e.alerts, alert)
	if len(e.alerts) > maxAlerts {
		e.alerts = e.alerts[len(e.alerts)-maxAlerts:]
	}
}

func (e *entry) pushRecent(event schema.Event) {
	view := schema.EventView{
		TsMs:         event.TsMs,
		Type:         event.Type,
		StateHint:    event.StateHint,
		Text:         schema.TruncateText(event.Text),
		FilesTouched: append([]string(nil), event.FilesTouched...),
	}
	e.recentEvents = append([]schema.EventView{view}, e.recentEvents...)
	if len(e.recentEvents) > maxRecentEvents {
		e.recentEvents = e.recentEvents[:maxRecentEvents]
	}
}

// maybeNotifyLocked enqueues a notification when the entry newly
// enters a terminal state. Repeated events in the same terminal state
// do not re-notify; the marker clears only when the entry passes
// through a non-terminal state.
func (s *Store) maybeNotifyLocked(e *entry, state schema.State) {
	if !state.Terminal() {
		e.lastNotified = ""
		return
	}
	if e.lastNotified == state {
		return
	}
	e.lastNotified = state

	title := "Agent done"
	fallback := "Completed"
	if state == schema.StateError {
		title = "Agent error"
		fallback = "Error"
	}
	body := e.lastText
	if body == "" {
		body = fallback
	}
	s.pending = append(s.pending, schema.Notification{
		Title:   title,
		Message: e.displayName + " - " + body,
		Kind:    state,
		Key:     schema.Key(e.source, e.sessionID),
	})
}

// ApplyGitState records the git poll result for an existing entry and
// recomputes its dirty alert. Unknown keys are a no-op: the poller may
// race an eviction, and a poll result must never fabricate an entry.
func (s *Store) ApplyGitState(source schema.Source, sessionID string, git schema.GitState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[schema.Key(source, sessionID)]
	if !ok {
		return
	}
	gitCopy := git
	e.git = &gitCopy
	e.refreshRepoAlerts(gitCopy.CheckedAtMs)
}

// ApplyPrState records the PR poll result for an existing entry and
// recomputes its pr-pending alert. Unknown keys are a no-op.
func (s *Store) ApplyPrState(source schema.Source, sessionID string, pr schema.PrState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[schema.Key(source, sessionID)]
	if !ok {
		return
	}
	prCopy := pr
	e.pr = &prCopy
	e.refreshRepoAlerts(prCopy.CheckedAtMs)
}

// refreshRepoAlerts re-derives the dirty and pr-pending alerts from
// the current git/pr blocks, replacing any prior alert of those kinds.
func (e *entry) refreshRepoAlerts(tsMs int64) {
	e.removeAlerts(schema.AlertDirty)
	if e.git != nil && e.git.Error == "" && e.git.Dirty {
		e.addAlert(schema.Alert{
			Kind:    schema.AlertDirty,
			Message: "Uncommitted changes",
			TsMs:    tsMs,
		})
	}

	e.removeAlerts(schema.AlertPrPending)
	if e.pr.Open() {
		message := "Open pull request"
		if e.pr.Title != "" {
			message = schema.TruncateText("Open PR: " + e.pr.Title)
		}
		e.addAlert(schema.Alert{
			Kind:    schema.AlertPrPending,
			Message: message,
			TsMs:    tsMs,
		})
	}
}

// Snapshot applies decay, recomputes repo alerts, evicts entries
// beyond the tracking cap (oldest activity first), and returns the
// sorted, capped view plus summary counts over the retained window.
func (s *Store) Snapshot(now time.Time) schema.Snapshot {
	nowMs := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		s.decayLocked(e, nowMs)
		e.refreshRepoAlerts(nowMs)
		ordered = append(ordered, e)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].lastTsMs != ordered[j].lastTsMs {
			return ordered[i].lastTsMs > ordered[j].lastTsMs
		}
		// Stable tie-break so equal timestamps don't flap between
		// snapshots.
		return keyOf(ordered[i]) < keyOf(ordered[j])
	})

	if len(ordered) > s.maxTracked {
		for _, evicted := range ordered[s.maxTracked:] {
			delete(s.entries, keyOf(evicted))
		}
		ordered = ordered[:s.maxTracked]
	}

	snapshot := schema.Snapshot{NowMs: nowMs}
	snapshot.Agents = make([]schema.AgentView, 0, len(ordered))
	for _, e := range ordered {
		view := e.view()
		snapshot.Agents = append(snapshot.Agents, view)

		snapshot.Summary.Total++
		switch view.State {
		case schema.StateRunning, schema.StateThinking:
			snapshot.Summary.Active++
		case schema.StateWaiting:
			snapshot.Summary.Waiting++
		case schema.StateDone:
			snapshot.Summary.Done++
		case schema.StateError:
			snapshot.Summary.Error++
		}
		if view.Pr.Open() {
			snapshot.Summary.PrPending++
		}
		snapshot.Summary.Alerts += len(view.Alerts)
	}

	return snapshot
}

// decayLocked downgrades a silent entry: running/thinking/waiting →
// idle after idleAfter, idle → done after doneAfter. Forward only; no
// snapshot ever reverts a decayed state. Placeholder text is
// normalized alongside; real activity text is preserved. A decay into
// done goes through the same notification dedup as an event would.
func (s *Store) decayLocked(e *entry, nowMs int64) {
	silence := nowMs - e.lastTsMs

	switch e.state {
	case schema.StateRunning, schema.StateThinking, schema.StateWaiting:
		if silence > s.idleAfter.Milliseconds() {
			e.state = schema.StateIdle
			if e.lastText == placeholderThinking {
				e.lastText = placeholderIdle
			}
		}
	}

	if e.state == schema.StateIdle && silence > s.doneAfter.Milliseconds() {
		e.state = schema.StateDone
		if e.lastText == "" || e.lastText == placeholderIdle || e.lastText == placeholderThinking {
			e.lastText = textNoActivity
		}
		s.maybeNotifyLocked(e, schema.StateDone)
	}
}

func keyOf(e *entry) string {
	return schema.Key(e.source, e.sessionID)
}

// view builds the read-only projection of an entry. Slices are copied;
// the caller may hold the snapshot indefinitely.
func (e *entry) view() schema.AgentView {
	view := schema.AgentView{
		Key:          keyOf(e),
		Source:       e.source,
		SessionID:    e.sessionID,
		AgentID:      e.agentID,
		DisplayName:  e.displayName,
		State:        e.state,
		LastTsMs:     e.lastTsMs,
		LastText:     e.lastText,
		RepoPath:     e.repoPath,
		FilesTouched: append([]string(nil), e.filesTouched...),
		Alerts:       append([]schema.Alert(nil), e.alerts...),
		RecentEvents: append([]schema.EventView(nil), e.recentEvents...),
	}
	if e.git != nil {
		gitCopy := *e.git
		view.Git = &gitCopy
	}
	if e.pr != nil {
		prCopy := *e.pr
		view.Pr = &prCopy
	}
	return view
}

// DrainNotifications atomically returns and clears the pending
// notification queue. Each notification is delivered at most once.
func (s *Store) DrainNotifications() []schema.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.pending
	s.pending = nil
	return drained
}

// SetRepoBinding records a user-chosen repository path for a session
// and immediately propagates it onto the live entry if one exists. The
// binding outlives the entry: it re-seeds repo_path if the session is
// evicted and later rediscovered.
func (s *Store) SetRepoBinding(source schema.Source, sessionID, repoPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := schema.Key(source, sessionID)
	s.bindings[key] = repoPath
	if e, ok := s.entries[key]; ok {
		e.repoPath = repoPath
	}
}

// LoadBindings replaces the binding table, seeding repo paths onto
// live entries that have none.
func (s *Store) LoadBindings(bindings map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bindings = make(map[string]string, len(bindings))
	for key, path := range bindings {
		s.bindings[key] = path
		if e, ok := s.entries[key]; ok && e.repoPath == "" {
			e.repoPath = path
		}
	}
}

// Bindings returns a copy of the binding table for persistence.
func (s *Store) Bindings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	bindings := make(map[string]string, len(s.bindings))
	for key, path := range s.bindings {
		bindings[key] = path
	}
	return bindings
}

// TrackedRepos returns the bound repository for every live entry that
// has one, the input to the git and PR pollers.
func (s *Store) TrackedRepos() []TrackedRepo {
	s.mu.Lock()
	defer s.mu.Unlock()

	repos := make([]TrackedRepo, 0, len(s.entries))
	for _, e := range s.entries {
		if e.repoPath == "" {
			continue
		}
		repos = append(repos, TrackedRepo{
			Source:    e.source,
			SessionID: e.sessionID,
			RepoPath:  e.repoPath,
		})
	}
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Source != repos[j].Source {
			return repos[i].Source < repos[j].Source
		}
		return repos[i].SessionID < repos[j].SessionID
	})
	return repos
}
