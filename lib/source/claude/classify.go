// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"time"

	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
)

// classifyRecord maps one parsed transcript record to a normalized
// event. Returns false for records that carry no activity signal
// (summaries, hook chatter, unknown types).
//
// Assistant messages carry a content array whose items decide the
// event: a tool_use wins over text, text over thinking. User records
// are either tool results flowing back or a fresh human prompt.
func classifyRecord(record map[string]any, now time.Time) (schema.Event, bool) {
	event := schema.Event{
		Source: schema.SourceClaude,
		TsMs:   timestampMs(record, now),
	}

	if isErrorRecord(record) {
		event.Type = schema.EventError
		event.StateHint = schema.StateError
		event.Text = "Claude Code error"
		if text := rawjson.FirstStringAt(record, "error", "message"); text != "" {
			event.Text = schema.TruncateText(text)
		}
		return event, true
	}

	switch rawjson.StringAt(record, "type") {
	case "assistant":
		return classifyAssistant(record, event)

	case "user":
		if hasContentItem(record, "tool_result") {
			event.Type = schema.EventTool
			event.StateHint = schema.StateRunning
			event.Text = "Tool output"
			return event, true
		}
		event.Type = schema.EventMessage
		event.StateHint = schema.StateWaiting
		event.Text = "Waiting for input"
		return event, true

	case "system":
		if rawjson.StringAt(record, "subtype") == "turn_duration" {
			event.Type = schema.EventStatus
			event.StateHint = schema.StateDone
			event.Text = "Turn completed"
			return event, true
		}
		return schema.Event{}, false
	}
	return schema.Event{}, false
}

func classifyAssistant(record map[string]any, event schema.Event) (schema.Event, bool) {
	content := contentItems(record)

	for _, item := range content {
		if rawjson.StringAt(item, "type") != "tool_use" {
			continue
		}
		name := rawjson.StringAt(item, "name")
		if name == "" {
			name = "tool"
		}
		event.Type = schema.EventTool
		event.StateHint = schema.StateRunning
		event.FilesTouched = touchedFiles(item)
		label := name
		if len(event.FilesTouched) > 0 {
			label = name + " " + event.FilesTouched[0]
		}
		event.Text = schema.TruncateText(label)
		return event, true
	}

	for _, item := range content {
		if rawjson.StringAt(item, "type") != "text" {
			continue
		}
		event.Type = schema.EventMessage
		event.StateHint = schema.StateRunning
		event.Text = schema.TruncateText(rawjson.StringAt(item, "text"))
		return event, true
	}

	for _, item := range content {
		if rawjson.StringAt(item, "type") != "thinking" {
			continue
		}
		event.Type = schema.EventStatus
		event.StateHint = schema.StateThinking
		event.Text = "Thinking"
		return event, true
	}
	return schema.Event{}, false
}

// touchedFiles pulls file paths out of a tool_use input under the keys
// the built-in tools use.
func touchedFiles(item map[string]any) []string {
	input := rawjson.MapAt(item, "input")
	var files []string
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if path := rawjson.StringAt(input, key); path != "" {
			files = append(files, path)
		}
	}
	return files
}

func contentItems(record map[string]any) []map[string]any {
	raw, ok := rawjson.MapAt(record, "message")["content"].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func hasContentItem(record map[string]any, itemType string) bool {
	for _, item := range contentItems(record) {
		if rawjson.StringAt(item, "type") == itemType {
			return true
		}
	}
	return false
}

func isErrorRecord(record map[string]any) bool {
	if b, ok := record["isApiErrorMessage"].(bool); ok && b {
		return true
	}
	return rawjson.StringAt(record, "level") == "error"
}

func timestampMs(record map[string]any, now time.Time) int64 {
	if raw := rawjson.StringAt(record, "timestamp"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return parsed.UnixMilli()
		}
	}
	if epoch, ok := rawjson.Int64At(record, "timestamp"); ok {
		return rawjson.EpochMillis(epoch)
	}
	return now.UnixMilli()
}
