// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
)

// Per-poll row bounds for the database variant.
const (
	maxDbSessions = 100
	maxDbParts    = 200
)

// dbReader reads the opencode.db sqlite database read-only and tracks
// a time_updated watermark so each poll only surfaces new activity.
type dbReader struct {
	db        *sql.DB
	watermark int64
}

func openDbReader(path string) (*dbReader, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &dbReader{db: db}, nil
}

func (r *dbReader) Close() error { return r.db.Close() }

// pollDatabase reads session and part rows newer than the watermark.
// The first poll is bounded by the seed limit like the storage tree;
// afterwards the watermark keeps result sets small on its own.
func (t *Tailer) pollDatabase(ctx context.Context, path string) {
	if t.db == nil {
		reader, err := openDbReader(path)
		if err != nil {
			t.logger.Warn("database open failed", "error", err)
			return
		}
		t.db = reader
	}

	sessionLimit, partLimit := maxDbSessions, maxDbParts
	if t.db.watermark == 0 {
		sessionLimit, partLimit = seedEventLimit, seedEventLimit
	}
	next := t.db.watermark

	rows, err := t.db.db.QueryContext(ctx,
		`SELECT id, directory, title, time_updated
		 FROM session
		 WHERE (time_archived IS NULL OR time_archived = 0) AND time_updated > ?
		 ORDER BY time_updated DESC
		 LIMIT ?`, t.db.watermark, sessionLimit)
	if err != nil {
		t.logger.Warn("session query failed", "error", err)
		return
	}
	for rows.Next() {
		var (
			sessionID        string
			directory, title sql.NullString
			updated          int64
		)
		if err := rows.Scan(&sessionID, &directory, &title, &updated); err != nil {
			continue
		}
		if updated > next {
			next = updated
		}
		if title.Valid {
			t.sessionTitle[sessionID] = title.String
		}
		if directory.Valid && directory.String != "" {
			t.sessionRepo[sessionID] = directory.String
		}
		t.send(schema.Event{
			Type:      schema.EventStatus,
			StateHint: schema.StateRunning,
			Text:      "Session activity",
			TsMs:      rawjson.EpochMillis(updated),
		}, sessionID)
	}
	rows.Close()

	rows, err = t.db.db.QueryContext(ctx,
		`SELECT session_id, time_updated, data
		 FROM part
		 WHERE time_updated > ?
		 ORDER BY time_updated DESC
		 LIMIT ?`, t.db.watermark, partLimit)
	if err != nil {
		t.logger.Warn("part query failed", "error", err)
		t.db.watermark = next
		return
	}
	for rows.Next() {
		var (
			sessionID string
			updated   int64
			data      string
		)
		if err := rows.Scan(&sessionID, &updated, &data); err != nil {
			continue
		}
		if updated > next {
			next = updated
		}
		doc, ok := rawjson.Parse([]byte(data))
		if !ok {
			continue
		}
		event, ok := classifyPart(doc, rawjson.EpochMillis(updated))
		if !ok {
			continue
		}
		t.send(event, sessionID)
	}
	rows.Close()

	t.db.watermark = next
}
