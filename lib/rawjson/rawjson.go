// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package rawjson probes loosely-typed JSON records from the
// heterogeneous agent log formats. The tailers decode each record into
// a map[string]any and extract the handful of fields they understand;
// everything else is ignored. Malformed records are expected at tail
// boundaries, so Parse reports failure instead of returning an error.
package rawjson

import (
	"encoding/json"
	"math"
)

// Parse decodes a JSON object. Returns ok=false for anything that is
// not a complete JSON object (truncated tail lines, arrays, scalars).
func Parse(data []byte) (map[string]any, bool) {
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false
	}
	return record, true
}

// StringAt walks the given key path and returns the string at the end
// of it. Returns "" when any step is missing or the value is not a
// string.
func StringAt(record map[string]any, path ...string) string {
	value, ok := at(record, path)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// FirstStringAt returns the first non-empty StringAt result across
// several alternative keys at the top level. Agent tools disagree on
// field spelling (sessionID vs session_id vs sessionId); this keeps
// call sites flat.
func FirstStringAt(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := StringAt(record, key); s != "" {
			return s
		}
	}
	return ""
}

// Int64At walks the given key path and returns the integer at the end
// of it, coercing JSON numbers (float64). Numeric strings are not
// accepted. Returns (0, false) when missing or non-numeric.
func Int64At(record map[string]any, path ...string) (int64, bool) {
	value, ok := at(record, path)
	if !ok {
		return 0, false
	}
	switch n := value.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			float, floatErr := n.Float64()
			if floatErr != nil {
				return 0, false
			}
			return int64(float), true
		}
		return parsed, true
	}
	return 0, false
}

// MapAt walks the given key path and returns the object at the end of
// it. Returns nil when missing or not an object.
func MapAt(record map[string]any, path ...string) map[string]any {
	value, ok := at(record, path)
	if !ok {
		return nil
	}
	m, _ := value.(map[string]any)
	return m
}

func at(record map[string]any, path []string) (any, bool) {
	var current any = record
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// EpochMillis normalizes a timestamp of unknown precision to
// milliseconds. Agent tools variously record seconds, milliseconds,
// microseconds, and nanoseconds; the magnitude disambiguates:
//
//	< 1e10   seconds       → *1000
//	> 1e16   nanoseconds   → /1e6
//	> 1e13   microseconds  → /1000
//	else     already milliseconds
//
// Non-positive values pass through unchanged.
func EpochMillis(value int64) int64 {
	if value <= 0 {
		return value
	}
	if value < 10_000_000_000 {
		return value * 1000
	}
	if value > 10_000_000_000_000_000 {
		return value / 1_000_000
	}
	if value > 10_000_000_000_000 {
		return value / 1000
	}
	return value
}
