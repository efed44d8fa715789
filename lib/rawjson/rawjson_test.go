// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package rawjson

import "testing"

func TestParseRejectsNonObjects(t *testing.T) {
	if _, ok := Parse([]byte(`{"a": 1}`)); !ok {
		t.Fatal("valid object rejected")
	}
	for _, input := range []string{`[1,2]`, `"s"`, `{"truncat`, ``} {
		if _, ok := Parse([]byte(input)); ok {
			t.Fatalf("Parse(%q) accepted", input)
		}
	}
}

func TestStringAt(t *testing.T) {
	record, _ := Parse([]byte(`{"path": {"root": "/srv/repo"}, "n": 3}`))

	if got := StringAt(record, "path", "root"); got != "/srv/repo" {
		t.Fatalf("StringAt = %q", got)
	}
	if got := StringAt(record, "path", "missing"); got != "" {
		t.Fatalf("StringAt missing = %q", got)
	}
	if got := StringAt(record, "n"); got != "" {
		t.Fatalf("StringAt non-string = %q", got)
	}
}

func TestFirstStringAt(t *testing.T) {
	record, _ := Parse([]byte(`{"sessionId": "", "session_id": "abc"}`))
	if got := FirstStringAt(record, "sessionID", "sessionId", "session_id"); got != "abc" {
		t.Fatalf("FirstStringAt = %q", got)
	}
}

func TestInt64At(t *testing.T) {
	record, _ := Parse([]byte(`{"time": {"created": 1700000000123}, "s": "x"}`))

	value, ok := Int64At(record, "time", "created")
	if !ok || value != 1700000000123 {
		t.Fatalf("Int64At = %d, %v", value, ok)
	}
	if _, ok := Int64At(record, "s"); ok {
		t.Fatal("Int64At accepted a string")
	}
	if _, ok := Int64At(record, "time", "completed"); ok {
		t.Fatal("Int64At accepted a missing key")
	}
}

func TestEpochMillis(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  int64
	}{
		{"seconds", 1_700_000_000, 1_700_000_000_000},
		{"milliseconds", 1_700_000_000_123, 1_700_000_000_123},
		{"microseconds", 1_700_000_000_123_456, 1_700_000_000_123},
		{"nanoseconds", 1_700_000_000_123_456_789, 1_700_000_000_123},
		{"zero", 0, 0},
		{"negative", -5, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EpochMillis(tt.input); got != tt.want {
				t.Fatalf("EpochMillis(%d) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
