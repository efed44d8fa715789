// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/schema"
)

func createTestDb(t *testing.T, root string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(root, "opencode.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE session (
			id TEXT PRIMARY KEY,
			directory TEXT,
			title TEXT,
			time_updated INTEGER,
			time_archived INTEGER
		)`,
		`CREATE TABLE part (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			time_updated INTEGER,
			data TEXT
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestPollDatabase(t *testing.T) {
	root := t.TempDir()
	db := createTestDb(t, root)

	if _, err := db.Exec(
		`INSERT INTO session (id, directory, title, time_updated, time_archived) VALUES (?, ?, ?, ?, NULL)`,
		"ses1", "/home/dev/project", "Port the scanner", int64(1756562531000)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO part (id, session_id, time_updated, data) VALUES (?, ?, ?, ?)`,
		"prt1", "ses1", int64(1756562532000),
		`{"type":"tool","tool":"bash","state":{"status":"running"}}`); err != nil {
		t.Fatal(err)
	}

	var events []schema.Event
	tl := New(testLogger(), clock.Fake(time.UnixMilli(5000)), root, func(ev schema.Event) {
		events = append(events, ev)
	})
	defer tl.Close()

	tl.Poll(context.Background())
	if len(events) != 2 {
		t.Fatalf("events = %d, want session row and part row", len(events))
	}
	if events[0].Text != "Session activity" || events[0].RepoPath != "/home/dev/project" {
		t.Errorf("session event = %+v", events[0])
	}
	if events[0].Title != "Port the scanner" {
		t.Errorf("title = %q", events[0].Title)
	}
	if events[1].Text != "bash: running" || events[1].SessionID != "ses1" {
		t.Errorf("part event = %+v", events[1])
	}

	// Nothing new: the watermark silences the next poll.
	events = nil
	tl.Poll(context.Background())
	if len(events) != 0 {
		t.Fatalf("idle poll events = %d, want 0", len(events))
	}

	// A newer part row surfaces alone.
	if _, err := db.Exec(
		`INSERT INTO part (id, session_id, time_updated, data) VALUES (?, ?, ?, ?)`,
		"prt2", "ses1", int64(1756562540000),
		`{"type":"step-finish","reason":"stop"}`); err != nil {
		t.Fatal(err)
	}
	tl.Poll(context.Background())
	if len(events) != 1 || events[0].StateHint != schema.StateDone {
		t.Fatalf("events = %+v, want single step-finish", events)
	}
}

func TestPollDatabaseSkipsArchived(t *testing.T) {
	root := t.TempDir()
	db := createTestDb(t, root)
	if _, err := db.Exec(
		`INSERT INTO session (id, directory, title, time_updated, time_archived) VALUES (?, ?, ?, ?, ?)`,
		"old", "/x", "Old", int64(1756562531000), int64(1756562532000)); err != nil {
		t.Fatal(err)
	}

	var events []schema.Event
	tl := New(testLogger(), clock.Fake(time.UnixMilli(5000)), root, func(ev schema.Event) {
		events = append(events, ev)
	})
	defer tl.Close()

	tl.Poll(context.Background())
	if len(events) != 0 {
		t.Fatalf("events = %d, want archived session skipped", len(events))
	}
}
