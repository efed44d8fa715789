// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package codex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/schema"
)

const testSessionFile = "rollout-2026-08-30T14-02-11-0199a213-81ac-7063-a018-34c9f8ed1bd6.jsonl"
const testSessionID = "0199a213-81ac-7063-a018-34c9f8ed1bd6"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyTable(t *testing.T) {
	now := time.UnixMilli(1000)
	cases := []struct {
		name  string
		line  string
		state schema.State
		typ   schema.EventType
		text  string
	}{
		{
			name:  "task complete",
			line:  `{"type":"event_msg","payload":{"type":"task_complete"}}`,
			state: schema.StateDone, typ: schema.EventStatus, text: "Turn completed",
		},
		{
			name:  "turn aborted",
			line:  `{"type":"event_msg","payload":{"type":"turn_aborted"}}`,
			state: schema.StateWaiting, typ: schema.EventStatus, text: "Turn aborted",
		},
		{
			name:  "agent message",
			line:  `{"type":"event_msg","payload":{"type":"agent_message","message":"working on it"}}`,
			state: schema.StateRunning, typ: schema.EventMessage, text: "working on it",
		},
		{
			name:  "reasoning",
			line:  `{"type":"event_msg","payload":{"type":"agent_reasoning"}}`,
			state: schema.StateThinking, typ: schema.EventStatus, text: "Thinking",
		},
		{
			name:  "token count",
			line:  `{"type":"event_msg","payload":{"type":"token_count"}}`,
			state: schema.StateThinking, typ: schema.EventStatus, text: "Thinking",
		},
		{
			name:  "task started",
			line:  `{"type":"event_msg","payload":{"type":"task_started"}}`,
			state: schema.StateRunning, typ: schema.EventStatus, text: "Task started",
		},
		{
			name:  "user message",
			line:  `{"type":"event_msg","payload":{"type":"user_message","message":"do the thing"}}`,
			state: schema.StateWaiting, typ: schema.EventMessage, text: "Waiting for input",
		},
		{
			name:  "function call",
			line:  `{"type":"response_item","payload":{"type":"function_call","name":"shell"}}`,
			state: schema.StateRunning, typ: schema.EventTool, text: "shell: running",
		},
		{
			name:  "function call output",
			line:  `{"type":"response_item","payload":{"type":"function_call_output"}}`,
			state: schema.StateRunning, typ: schema.EventTool, text: "Tool output",
		},
		{
			name:  "error",
			line:  `{"type":"event_msg","payload":{"type":"stream_error","message":"rate limited"}}`,
			state: schema.StateError, typ: schema.EventError, text: "rate limited",
		},
		{
			name:  "unknown type falls back to running",
			line:  `{"type":"event_msg","payload":{"type":"shiny_new_thing"}}`,
			state: schema.StateRunning, typ: schema.EventMessage, text: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, ok := Classify([]byte(tc.line), now)
			if !ok {
				t.Fatal("classify rejected line")
			}
			if event.StateHint != tc.state {
				t.Errorf("state = %q, want %q", event.StateHint, tc.state)
			}
			if event.Type != tc.typ {
				t.Errorf("type = %q, want %q", event.Type, tc.typ)
			}
			if event.Text != tc.text {
				t.Errorf("text = %q, want %q", event.Text, tc.text)
			}
		})
	}
}

func TestClassifyFunctionCallFiles(t *testing.T) {
	now := time.UnixMilli(1000)

	event, ok := Classify([]byte(`{"type":"response_item","payload":{"type":"function_call","name":"write_file","arguments":"{\"file_path\":\"/home/dev/project/main.go\",\"content\":\"x\"}"}}`), now)
	if !ok {
		t.Fatal("rejected")
	}
	if len(event.FilesTouched) != 1 || event.FilesTouched[0] != "/home/dev/project/main.go" {
		t.Errorf("files = %v", event.FilesTouched)
	}

	patch := "*** Begin Patch\\n*** Update File: lib/store/store.go\\n*** Add File: lib/store/new.go\\n*** End Patch"
	event, ok = Classify([]byte(`{"type":"response_item","payload":{"type":"custom_tool_call","name":"apply_patch","input":"`+patch+`"}}`), now)
	if !ok {
		t.Fatal("rejected")
	}
	if len(event.FilesTouched) != 2 ||
		event.FilesTouched[0] != "lib/store/store.go" ||
		event.FilesTouched[1] != "lib/store/new.go" {
		t.Errorf("patch files = %v", event.FilesTouched)
	}
}

func TestClassifyRejectsMetaAndGarbage(t *testing.T) {
	now := time.UnixMilli(1000)
	for _, line := range []string{
		``,
		`not json`,
		`[1,2,3]`,
		`{"type":"session_meta","payload":{"cwd":"/home/dev/project"}}`,
	} {
		if _, ok := Classify([]byte(line), now); ok {
			t.Errorf("line %q classified, want rejection", line)
		}
	}
}

func TestClassifyTimestamp(t *testing.T) {
	now := time.UnixMilli(99999)

	event, ok := Classify([]byte(`{"timestamp":"2026-08-30T14:02:11Z","type":"event_msg","payload":{"type":"task_started"}}`), now)
	if !ok {
		t.Fatal("rejected")
	}
	want := time.Date(2026, 8, 30, 14, 2, 11, 0, time.UTC).UnixMilli()
	if event.TsMs != want {
		t.Errorf("ts = %d, want %d", event.TsMs, want)
	}

	event, ok = Classify([]byte(`{"timestamp":1756562531,"type":"event_msg","payload":{"type":"task_started"}}`), now)
	if !ok {
		t.Fatal("rejected")
	}
	if event.TsMs != 1756562531000 {
		t.Errorf("ts = %d, want seconds normalized to millis", event.TsMs)
	}

	event, ok = Classify([]byte(`{"type":"event_msg","payload":{"type":"task_started"}}`), now)
	if !ok {
		t.Fatal("rejected")
	}
	if event.TsMs != 99999 {
		t.Errorf("ts = %d, want wall clock fallback", event.TsMs)
	}
}

func TestPollSeedsThenTailsIncrementally(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, testSessionFile)
	seed := `{"type":"session_meta","payload":{"cwd":"/home/dev/project"}}` + "\n" +
		`{"type":"event_msg","payload":{"type":"task_started"}}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
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
	if events[0].Text != "Session discovered" || events[0].StateHint != schema.StateIdle {
		t.Errorf("discovery event = %+v", events[0])
	}
	for _, event := range events {
		if event.SessionID != testSessionID {
			t.Errorf("session = %q", event.SessionID)
		}
		if event.RepoPath != "/home/dev/project" {
			t.Errorf("repo = %q, want session_meta cwd", event.RepoPath)
		}
	}
	if events[1].StateHint != schema.StateRunning || events[1].Text != "Task started" {
		t.Errorf("tail seed event = %+v", events[1])
	}

	// Second poll with no appended lines emits nothing.
	events = nil
	tl.Poll(context.Background())
	if len(events) != 0 {
		t.Fatalf("idle poll events = %d, want 0", len(events))
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString(`{"type":"event_msg","payload":{"type":"task_complete"}}` + "\n"); err != nil {
		t.Fatal(err)
	}
	file.Close()

	tl.Poll(context.Background())
	if len(events) != 1 {
		t.Fatalf("tail events = %d, want 1", len(events))
	}
	if events[0].StateHint != schema.StateDone {
		t.Errorf("state = %q, want done", events[0].StateHint)
	}
}

func TestPollSkipsFilesWithoutSessionUUID(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.jsonl"), []byte(`{"type":"event_msg","payload":{"type":"task_started"}}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var events []schema.Event
	tl := New(testLogger(), clock.Fake(time.UnixMilli(5000)), root, func(ev schema.Event) {
		events = append(events, ev)
	})
	tl.Poll(context.Background())
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 for non-rollout file", len(events))
	}
}
