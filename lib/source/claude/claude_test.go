// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parse(t *testing.T, line string) map[string]any {
	t.Helper()
	record, ok := rawjson.Parse([]byte(line))
	if !ok {
		t.Fatalf("unparseable test line: %s", line)
	}
	return record
}

func TestClassifyAssistantToolUse(t *testing.T) {
	record := parse(t, `{"type":"assistant","timestamp":"2026-08-30T10:00:00Z","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/repo/main.go"}}]}}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok {
		t.Fatal("rejected")
	}
	if event.Type != schema.EventTool || event.StateHint != schema.StateRunning {
		t.Errorf("type/state = %q/%q", event.Type, event.StateHint)
	}
	if event.Text != "Edit /repo/main.go" {
		t.Errorf("text = %q", event.Text)
	}
	if len(event.FilesTouched) != 1 || event.FilesTouched[0] != "/repo/main.go" {
		t.Errorf("files = %v", event.FilesTouched)
	}
}

func TestClassifyAssistantTextAndThinking(t *testing.T) {
	record := parse(t, `{"type":"assistant","message":{"content":[{"type":"text","text":"done with the refactor"}]}}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok || event.StateHint != schema.StateRunning || event.Text != "done with the refactor" {
		t.Fatalf("event = %+v ok=%v", event, ok)
	}

	record = parse(t, `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"hmm"}]}}`)
	event, ok = classifyRecord(record, time.UnixMilli(0))
	if !ok || event.StateHint != schema.StateThinking || event.Text != "Thinking" {
		t.Fatalf("event = %+v ok=%v", event, ok)
	}
}

func TestClassifyToolUseWinsOverText(t *testing.T) {
	record := parse(t, `{"type":"assistant","message":{"content":[{"type":"text","text":"let me edit"},{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok || event.Type != schema.EventTool {
		t.Fatalf("event = %+v, want tool event", event)
	}
	if event.Text != "Bash" {
		t.Errorf("text = %q", event.Text)
	}
}

func TestClassifyUser(t *testing.T) {
	record := parse(t, `{"type":"user","message":{"content":[{"type":"tool_result","content":"ok"}]}}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok || event.Text != "Tool output" || event.StateHint != schema.StateRunning {
		t.Fatalf("event = %+v", event)
	}

	record = parse(t, `{"type":"user","message":{"content":"please fix the tests"}}`)
	event, ok = classifyRecord(record, time.UnixMilli(0))
	if !ok || event.StateHint != schema.StateWaiting {
		t.Fatalf("event = %+v", event)
	}
}

func TestClassifySystemTurnDuration(t *testing.T) {
	record := parse(t, `{"type":"system","subtype":"turn_duration","durationMs":5120}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok || event.StateHint != schema.StateDone || event.Text != "Turn completed" {
		t.Fatalf("event = %+v", event)
	}

	record = parse(t, `{"type":"system","subtype":"hook_ran"}`)
	if _, ok := classifyRecord(record, time.UnixMilli(0)); ok {
		t.Fatal("hook chatter classified, want rejection")
	}
}

func TestClassifyErrorRecord(t *testing.T) {
	record := parse(t, `{"type":"assistant","isApiErrorMessage":true,"error":"overloaded"}`)
	event, ok := classifyRecord(record, time.UnixMilli(0))
	if !ok || event.StateHint != schema.StateError || event.Text != "overloaded" {
		t.Fatalf("event = %+v", event)
	}
}

func TestPollCarriesTitleAndCwd(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "-home-dev-project")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(project, "aaaabbbb-cccc-dddd-eeee-ffff00001111.jsonl")
	content := `{"type":"summary","summary":"Fix flaky watcher test"}` + "\n" +
		`{"type":"user","cwd":"/home/dev/project","message":{"content":"fix it"}}` + "\n" +
		`{"type":"assistant","message":{"content":[{"type":"text","text":"on it"}]}}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var events []schema.Event
	tl := New(testLogger(), clock.Fake(time.UnixMilli(5000)), root, func(ev schema.Event) {
		events = append(events, ev)
	})
	tl.Poll(context.Background())

	if len(events) != 2 {
		t.Fatalf("seed events = %d, want discovery plus latest record", len(events))
	}
	for _, event := range events {
		if event.SessionID != "aaaabbbb-cccc-dddd-eeee-ffff00001111" {
			t.Errorf("session = %q", event.SessionID)
		}
		if event.Title != "Fix flaky watcher test" {
			t.Errorf("title = %q", event.Title)
		}
		if event.RepoPath != "/home/dev/project" {
			t.Errorf("repo = %q, want head cwd", event.RepoPath)
		}
	}
	if events[0].Text != "Session discovered" {
		t.Errorf("discovery event = %+v", events[0])
	}
	if events[1].StateHint != schema.StateRunning || events[1].Text != "on it" {
		t.Errorf("tail seed event = %+v", events[1])
	}

	// Appended lines after seeding flow through the cursor.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString(`{"type":"system","subtype":"turn_duration","durationMs":900}` + "\n"); err != nil {
		t.Fatal(err)
	}
	file.Close()

	events = nil
	tl.Poll(context.Background())
	if len(events) != 1 || events[0].StateHint != schema.StateDone {
		t.Fatalf("tail events = %+v, want single done event", events)
	}
}
