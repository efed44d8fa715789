// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"strings"

	"github.com/agentdeck/agentdeck/lib/rawjson"
	"github.com/agentdeck/agentdeck/lib/schema"
)

// classifyMessage maps a message document to an event. A message with
// a completion time is a finished turn; one without is in flight.
func classifyMessage(doc map[string]any, fallbackTsMs int64) (schema.Event, bool) {
	event := schema.Event{Type: schema.EventMessage}

	event.TsMs = fallbackTsMs
	if created, ok := rawjson.Int64At(doc, "time", "created"); ok {
		event.TsMs = rawjson.EpochMillis(created)
	}

	if completed, ok := rawjson.Int64At(doc, "time", "completed"); ok {
		event.StateHint = schema.StateDone
		event.TsMs = rawjson.EpochMillis(completed)
	} else {
		event.StateHint = schema.StateRunning
	}

	if text := rawjson.FirstStringAt(doc, "summary", "finish"); text != "" {
		event.Text = schema.TruncateText(text)
	}
	return event, true
}

// classifyPart maps a tool-call part document to an event. Part types
// other than tool, reasoning, step-start, and step-finish carry no
// activity signal.
func classifyPart(doc map[string]any, fallbackTsMs int64) (schema.Event, bool) {
	switch rawjson.StringAt(doc, "type") {
	case "tool":
		return classifyToolPart(doc, fallbackTsMs), true

	case "reasoning":
		event := schema.Event{
			Type:      schema.EventStatus,
			StateHint: schema.StateThinking,
			Text:      "Thinking",
			TsMs:      partTime(doc, fallbackTsMs),
		}
		if text := rawjson.StringAt(doc, "text"); text != "" {
			event.Text = schema.TruncateText(text)
		}
		return event, true

	case "step-start":
		return schema.Event{
			Type:      schema.EventStatus,
			StateHint: schema.StateRunning,
			Text:      "Step started",
			TsMs:      fallbackTsMs,
		}, true

	case "step-finish":
		reason := rawjson.StringAt(doc, "reason")
		if reason == "" {
			reason = "stop"
		}
		return schema.Event{
			Type:      schema.EventStatus,
			StateHint: schema.StateDone,
			Text:      schema.TruncateText("Step finished: " + reason),
			TsMs:      fallbackTsMs,
		}, true
	}
	return schema.Event{}, false
}

// classifyToolPart reads the tool part's embedded state machine: a
// status of error maps to error, a completed status or an end
// timestamp means the call finished, anything else is still running.
func classifyToolPart(doc map[string]any, fallbackTsMs int64) schema.Event {
	status := strings.ToLower(rawjson.StringAt(doc, "state", "status"))
	if status == "" {
		status = "running"
	}
	name := rawjson.StringAt(doc, "tool")
	if name == "" {
		name = "tool"
	}

	ts := fallbackTsMs
	if start, ok := rawjson.Int64At(doc, "state", "time", "start"); ok {
		ts = rawjson.EpochMillis(start)
	}
	endTs, hasEnd := rawjson.Int64At(doc, "state", "time", "end")
	if hasEnd {
		ts = rawjson.EpochMillis(endTs)
	}

	event := schema.Event{
		Type: schema.EventTool,
		TsMs: ts,
		Text: schema.TruncateText(name + ": " + status),
	}
	switch {
	case status == "error":
		event.Type = schema.EventError
		event.StateHint = schema.StateError
	case status == "completed" || hasEnd:
		event.StateHint = schema.StateDone
	default:
		event.StateHint = schema.StateRunning
	}
	return event
}

// partTime resolves a reasoning part's timestamp: end wins over start
// wins over the fallback.
func partTime(doc map[string]any, fallbackTsMs int64) int64 {
	if end, ok := rawjson.Int64At(doc, "time", "end"); ok {
		return rawjson.EpochMillis(end)
	}
	if start, ok := rawjson.Int64At(doc, "time", "start"); ok {
		return rawjson.EpochMillis(start)
	}
	return fallbackTsMs
}
