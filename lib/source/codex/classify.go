// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package codex

import (
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
)

// Classify maps one rollout line to a normalized event. The second
// return is false for lines that carry no activity signal: blank or
// malformed JSON, and session_meta records. The caller fills in the
// session id and repo path.
//
// Rollout lines nest the interesting type one level down, either as an
// event_msg ({"type":"event_msg","payload":{"type":"agent_message"}})
// or a response_item ({"type":"response_item","payload":{"type":
// "function_call"}}), so classification keys on the payload type.
func Classify(line []byte, now time.Time) (schema.Event, bool) {
	record, ok := rawjson.Parse(line)
	if !ok {
		return schema.Event{}, false
	}

	kind := rawjson.StringAt(record, "payload", "type")
	if kind == "" {
		kind = rawjson.StringAt(record, "type")
	}
	if kind == "" || kind == "session_meta" {
		return schema.Event{}, false
	}

	event := schema.Event{
		Source: schema.SourceCodex,
		TsMs:   timestampMs(record, now),
	}

	switch {
	case kind == "task_complete" || kind == "turn_completed":
		event.Type = schema.EventStatus
		event.StateHint = schema.StateDone
		event.Text = "Turn completed"

	case kind == "turn_aborted" || kind == "aborted":
		event.Type = schema.EventStatus
		event.StateHint = schema.StateWaiting
		event.Text = "Turn aborted"

	case kind == "agent_message":
		event.Type = schema.EventMessage
		event.StateHint = schema.StateRunning
		event.Text = schema.TruncateText(payloadText(record))

	case kind == "agent_reasoning" || kind == "reasoning" ||
		kind == "agent_reasoning_delta" || kind == "token_count":
		event.Type = schema.EventStatus
		event.StateHint = schema.StateThinking
		event.Text = "Thinking"

	case kind == "task_started":
		event.Type = schema.EventStatus
		event.StateHint = schema.StateRunning
		event.Text = "Task started"

	case kind == "user_message":
		event.Type = schema.EventMessage
		event.StateHint = schema.StateWaiting
		event.Text = "Waiting for input"

	case kind == "function_call" || kind == "custom_tool_call":
		event.Type = schema.EventTool
		event.StateHint = schema.StateRunning
		name := rawjson.StringAt(record, "payload", "name")
		if name == "" {
			name = "tool"
		}
		event.Text = schema.TruncateText(name + ": running")
		event.FilesTouched = touchedFiles(record)

	case kind == "function_call_output" || kind == "custom_tool_call_output":
		event.Type = schema.EventTool
		event.StateHint = schema.StateRunning
		event.Text = "Tool output"

	case containsAny(kind, "error", "failed", "exception", "fatal"):
		event.Type = schema.EventError
		event.StateHint = schema.StateError
		event.Text = "Codex error"
		if text := payloadText(record); text != "" {
			event.Text = schema.TruncateText(text)
		}

	case strings.Contains(kind, "complete"):
		event.Type = schema.EventStatus
		event.StateHint = schema.StateDone
		event.Text = "Turn completed"

	default:
		event.Type = schema.EventMessage
		event.StateHint = schema.StateRunning
		event.Text = schema.TruncateText(payloadText(record))
	}

	return event, true
}

// payloadText finds the human-readable text of a payload, wherever the
// tool put it this release.
func payloadText(record map[string]any) string {
	return rawjson.FirstStringAt(rawjson.MapAt(record, "payload"), "message", "text", "content")
}

// touchedFiles pulls file paths out of a tool call's arguments. The
// arguments field is a JSON-encoded string; apply_patch calls carry
// paths in "*** Update File:" style patch headers, other tools in
// file_path or path keys.
func touchedFiles(record map[string]any) []string {
	raw := rawjson.StringAt(record, "payload", "arguments")
	if raw == "" {
		raw = rawjson.StringAt(record, "payload", "input")
	}
	if raw == "" {
		return nil
	}

	var files []string
	if args, ok := rawjson.Parse([]byte(raw)); ok {
		for _, key := range []string{"file_path", "path"} {
			if path := rawjson.StringAt(args, key); path != "" {
				files = append(files, path)
			}
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		for _, prefix := range []string{"*** Update File: ", "*** Add File: ", "*** Delete File: "} {
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
				if path := strings.TrimSpace(rest); path != "" {
					files = append(files, path)
				}
			}
		}
	}
	return files
}

// metaCwd extracts the working directory from a session_meta record.
// Older rollouts carry it at payload.cwd, newer ones nest it once more
// at payload.payload.cwd.
func metaCwd(record map[string]any) string {
	if rawjson.StringAt(record, "type") != "session_meta" &&
		rawjson.StringAt(record, "payload", "type") != "session_meta" {
		return ""
	}
	if cwd := rawjson.StringAt(record, "payload", "cwd"); cwd != "" {
		return cwd
	}
	return rawjson.StringAt(record, "payload", "payload", "cwd")
}

// timestampMs resolves the record timestamp: an RFC 3339 string, a
// numeric epoch in any common unit, or the wall clock as a last
// resort.
func timestampMs(record map[string]any, now time.Time) int64 {
	if raw := rawjson.StringAt(record, "timestamp"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return parsed.UnixMilli()
		}
	}
	if epoch, ok := rawjson.Int64At(record, "timestamp"); ok {
		return rawjson.EpochMillis(epoch)
	}
	if epoch, ok := rawjson.Int64At(record, "ts"); ok {
		return rawjson.EpochMillis(epoch)
	}
	return now.UnixMilli()
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
