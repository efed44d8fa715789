// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package opencode tails opencode activity. Unlike the other sources
// opencode does not keep one growing log per session: its storage tree
// holds one small JSON document per message and per tool-call part,
// with session descriptors and project descriptors alongside. Newer
// releases replace the tree with an opencode.db sqlite database; when
// that file exists it is preferred and the tree is ignored.
package opencode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/source"
	"github.com/agentdeck/agentdeck/lib/tailer"
)

// Per-poll discovery bounds for the storage tree. The tree accumulates
// a document per message forever; only the most recently modified
// slice can describe live activity.
const (
	maxSessionDocs = 100
	maxMessageDocs = 200
	maxPartDocs    = 300
)

// seedEventLimit caps how many first-seen documents the initial poll
// may surface as events. Without it, pointing the monitor at a
// populated history floods the bus with months of stale activity.
const seedEventLimit = 40

type docStamp struct {
	modMs int64
	size  int64
}

// Tailer follows the opencode storage tree or database under root.
type Tailer struct {
	logger  *slog.Logger
	clock   clock.Clock
	root    string
	publish source.Publisher

	seen   map[string]docStamp
	seeded bool

	// messageSession maps message ids to session ids. Part documents
	// in older trees reference only their message, so the index built
	// from message documents is what scopes them to a session.
	messageSession map[string]string
	sessionTitle   map[string]string
	sessionRepo    map[string]string

	db *dbReader
}

// DefaultRoot returns the opencode data directory, honoring
// OPENCODE_DATA_DIR.
func DefaultRoot() string {
	if dir := os.Getenv("OPENCODE_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "opencode")
}

// New returns a tailer over the opencode data root.
func New(logger *slog.Logger, clk clock.Clock, root string, publish source.Publisher) *Tailer {
	return &Tailer{
		logger:         logger.With("source", schema.SourceOpencode),
		clock:          clk,
		root:           root,
		publish:        publish,
		seen:           make(map[string]docStamp),
		messageSession: make(map[string]string),
		sessionTitle:   make(map[string]string),
		sessionRepo:    make(map[string]string),
	}
}

func (t *Tailer) Source() schema.Source { return schema.SourceOpencode }

// Close releases the database handle if one was opened.
func (t *Tailer) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// Poll reads activity since the previous poll. The database, when
// present, wins over the storage tree.
func (t *Tailer) Poll(ctx context.Context) {
	dbPath := filepath.Join(t.root, "opencode.db")
	if _, err := os.Stat(dbPath); err == nil {
		t.pollDatabase(ctx, dbPath)
		return
	}
	t.pollStorage(ctx)
}

// pollStorage walks the document tree, detecting new and changed
// documents by modify time plus size, and publishes an event per
// changed message or part document. Session and project descriptors
// feed the title and repository maps instead of producing events.
func (t *Tailer) pollStorage(ctx context.Context) {
	storage := filepath.Join(t.root, "storage")
	match := tailer.MatchExtension(".json")

	for _, file := range tailer.Discover(filepath.Join(storage, "session"), match, maxSessionDocs) {
		if t.changed(file) {
			t.readSessionDoc(file.Path)
		}
	}

	budget := -1 // unlimited once seeded
	if !t.seeded {
		budget = seedEventLimit
	}

	// Messages before parts: parts may need the message index entries
	// added this same poll.
	for _, file := range tailer.Discover(filepath.Join(storage, "message"), match, maxMessageDocs) {
		if ctx.Err() != nil {
			return
		}
		if !t.changed(file) {
			continue
		}
		if t.emitMessageDoc(file) && budget > 0 {
			budget--
		}
		if budget == 0 {
			t.markRemaining(storage, match)
			t.seeded = true
			return
		}
	}
	for _, file := range tailer.Discover(filepath.Join(storage, "part"), match, maxPartDocs) {
		if ctx.Err() != nil {
			return
		}
		if !t.changed(file) {
			continue
		}
		if t.emitPartDoc(file) && budget > 0 {
			budget--
		}
		if budget == 0 {
			t.markRemaining(storage, match)
			t.seeded = true
			return
		}
	}
	t.seeded = true
}

// changed records the document stamp and reports whether it differs
// from the previous poll.
func (t *Tailer) changed(file tailer.DiscoveredFile) bool {
	stamp := docStamp{modMs: file.ModTime.UnixMilli(), size: file.Size}
	if previous, ok := t.seen[file.Path]; ok && previous == stamp {
		return false
	}
	t.seen[file.Path] = stamp
	return true
}

// markRemaining stamps every discoverable document as seen without
// reading it, so a truncated seed pass does not replay the remainder
// as fresh activity next poll.
func (t *Tailer) markRemaining(storage string, match func(string, os.DirEntry) bool) {
	for _, sub := range []string{"message", "part"} {
		limit := maxMessageDocs
		if sub == "part" {
			limit = maxPartDocs
		}
		for _, file := range tailer.Discover(filepath.Join(storage, sub), match, limit) {
			t.seen[file.Path] = docStamp{modMs: file.ModTime.UnixMilli(), size: file.Size}
		}
	}
}

// readSessionDoc folds a session descriptor: title by session id, and
// repository path resolved through the project descriptor's worktree.
func (t *Tailer) readSessionDoc(path string) {
	doc, ok := readDoc(path)
	if !ok {
		return
	}
	sessionID := rawjson.FirstStringAt(doc, "id")
	if sessionID == "" {
		sessionID = stemOf(path)
	}
	if title := rawjson.StringAt(doc, "title"); title != "" {
		t.sessionTitle[sessionID] = title
	}
	projectID := rawjson.FirstStringAt(doc, "projectID", "projectId")
	if projectID == "" {
		return
	}
	projectPath := filepath.Join(t.root, "storage", "project", projectID+".json")
	project, ok := readDoc(projectPath)
	if !ok {
		return
	}
	if worktree := rawjson.StringAt(project, "worktree"); worktree != "" {
		t.sessionRepo[sessionID] = worktree
	}
}

// emitMessageDoc publishes an event for a message document, reporting
// whether one was published. Message documents also feed the
// message-id index.
func (t *Tailer) emitMessageDoc(file tailer.DiscoveredFile) bool {
	doc, ok := readDoc(file.Path)
	if !ok {
		return false
	}
	sessionID := rawjson.FirstStringAt(doc, "sessionID", "sessionId")
	if sessionID == "" {
		// message/<session-id>/<message-id>.json
		sessionID = filepath.Base(filepath.Dir(file.Path))
	}
	if messageID := rawjson.StringAt(doc, "id"); messageID != "" {
		t.messageSession[messageID] = sessionID
	}

	event, ok := classifyMessage(doc, file.ModTime.UnixMilli())
	if !ok {
		return false
	}
	t.send(event, sessionID)
	return true
}

// emitPartDoc publishes an event for a tool-call part document,
// resolving its session through the document itself or the message
// index.
func (t *Tailer) emitPartDoc(file tailer.DiscoveredFile) bool {
	doc, ok := readDoc(file.Path)
	if !ok {
		return false
	}
	sessionID := rawjson.FirstStringAt(doc, "sessionID", "sessionId")
	if sessionID == "" {
		messageID := rawjson.FirstStringAt(doc, "messageID", "messageId")
		if messageID == "" {
			// part/<message-id>/<part-id>.json
			messageID = filepath.Base(filepath.Dir(file.Path))
		}
		sessionID = t.messageSession[messageID]
	}
	if sessionID == "" {
		return false
	}

	event, ok := classifyPart(doc, file.ModTime.UnixMilli())
	if !ok {
		return false
	}
	t.send(event, sessionID)
	return true
}

func (t *Tailer) send(event schema.Event, sessionID string) {
	event.Source = schema.SourceOpencode
	event.SessionID = sessionID
	event.Title = t.sessionTitle[sessionID]
	event.RepoPath = t.sessionRepo[sessionID]
	t.publish(event)
}

func readDoc(path string) (map[string]any, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return rawjson.Parse(raw)
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
