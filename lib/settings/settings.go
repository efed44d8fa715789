// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings holds the user-facing monitor settings and the
// persisted repo binding table.
//
// Both live as JSON files under ~/.agentdeck/ and are hand-editable,
// so reads go through a comment-and-trailing-comma tolerant parse and
// every field is sanitized on the way in: missing, wrong-typed, or
// out-of-range values fall back to their documented defaults rather
// than failing the load.
package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
)

// Settings is the persisted monitor configuration. The JSON field
// names are the wire contract with the presentation layer and must not
// change.
type Settings struct {
	// Enabled turns the whole monitor engine on or off.
	Enabled bool `json:"enabled"`

	// Per-source enable flags.
	EnableClaude   bool `json:"enableClaude"`
	EnableOpencode bool `json:"enableOpencode"`
	EnableCodex    bool `json:"enableCodex"`

	// Repository poller enable flags.
	EnableGit bool `json:"enableGit"`
	EnablePr  bool `json:"enablePr"`

	// Cadences, in milliseconds. Values below minIntervalMs are
	// rejected back to the default.
	FlushIntervalMs      int64 `json:"flushIntervalMs"`
	SourcePollIntervalMs int64 `json:"sourcePollIntervalMs"`
	GitPollIntervalMs    int64 `json:"gitPollIntervalMs"`
	PrPollIntervalMs     int64 `json:"prPollIntervalMs"`

	// AgentLabelFontPx is consumed by the presentation layer only.
	// Clamped to [14, 40].
	AgentLabelFontPx int64 `json:"agentLabelFontPx"`

	// MaxIdleAgents is consumed by the presentation layer only.
	// Clamped to >= 0.
	MaxIdleAgents int64 `json:"maxIdleAgents"`
}

// minIntervalMs is the floor for every interval field. Sub-500ms
// cadences would have the tailers stat the whole log tree faster than
// the agents write to it.
const minIntervalMs = 500

const (
	minLabelFontPx = 14
	maxLabelFontPx = 40
)

// Default returns the documented default settings.
func Default() Settings {
	return Settings{
		Enabled:              true,
		EnableClaude:         true,
		EnableOpencode:       true,
		EnableCodex:          true,
		EnableGit:            true,
		EnablePr:             true,
		FlushIntervalMs:      1000,
		SourcePollIntervalMs: 2000,
		GitPollIntervalMs:    20000,
		PrPollIntervalMs:     90000,
		AgentLabelFontPx:     24,
		MaxIdleAgents:        3,
	}
}

// FromMap builds sanitized settings from a raw decoded JSON object,
// starting from the defaults. Unknown keys are ignored.
func FromMap(raw map[string]any) Settings {
	return Default().Apply(raw)
}

// Apply returns a copy of s with the recognized fields of patch
// applied and sanitized. Fields absent from patch keep their current
// value; present-but-invalid fields fall back to the default, matching
// the loading behavior.
func (s Settings) Apply(patch map[string]any) Settings {
	defaults := Default()

	applyBool(patch, "enabled", &s.Enabled, defaults.Enabled)
	applyBool(patch, "enableClaude", &s.EnableClaude, defaults.EnableClaude)
	applyBool(patch, "enableOpencode", &s.EnableOpencode, defaults.EnableOpencode)
	applyBool(patch, "enableCodex", &s.EnableCodex, defaults.EnableCodex)
	applyBool(patch, "enableGit", &s.EnableGit, defaults.EnableGit)
	applyBool(patch, "enablePr", &s.EnablePr, defaults.EnablePr)

	applyInterval(patch, "flushIntervalMs", &s.FlushIntervalMs, defaults.FlushIntervalMs)
	applyInterval(patch, "sourcePollIntervalMs", &s.SourcePollIntervalMs, defaults.SourcePollIntervalMs)
	applyInterval(patch, "gitPollIntervalMs", &s.GitPollIntervalMs, defaults.GitPollIntervalMs)
	applyInterval(patch, "prPollIntervalMs", &s.PrPollIntervalMs, defaults.PrPollIntervalMs)

	applyInt(patch, "agentLabelFontPx", &s.AgentLabelFontPx, defaults.AgentLabelFontPx)
	if s.AgentLabelFontPx < minLabelFontPx {
		s.AgentLabelFontPx = minLabelFontPx
	}
	if s.AgentLabelFontPx > maxLabelFontPx {
		s.AgentLabelFontPx = maxLabelFontPx
	}

	applyInt(patch, "maxIdleAgents", &s.MaxIdleAgents, defaults.MaxIdleAgents)
	if s.MaxIdleAgents < 0 {
		s.MaxIdleAgents = 0
	}

	return s
}

// FlushInterval returns the snapshot flush cadence as a duration.
func (s Settings) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

// SourcePollInterval returns the tailer tick cadence as a duration.
func (s Settings) SourcePollInterval() time.Duration {
	return time.Duration(s.SourcePollIntervalMs) * time.Millisecond
}

// GitPollInterval returns the git poller cadence as a duration.
func (s Settings) GitPollInterval() time.Duration {
	return time.Duration(s.GitPollIntervalMs) * time.Millisecond
}

// PrPollInterval returns the PR poller cadence as a duration.
func (s Settings) PrPollInterval() time.Duration {
	return time.Duration(s.PrPollIntervalMs) * time.Millisecond
}

// SourceEnabled reports whether the tailer for the given source is
// switched on.
func (s Settings) SourceEnabled(source string) bool {
	switch source {
	case "claude":
		return s.EnableClaude
	case "opencode":
		return s.EnableOpencode
	case "codex":
		return s.EnableCodex
	}
	return false
}

func applyBool(patch map[string]any, key string, field *bool, fallback bool) {
	value, present := patch[key]
	if !present {
		return
	}
	if b, ok := value.(bool); ok {
		*field = b
		return
	}
	*field = fallback
}

func applyInt(patch map[string]any, key string, field *int64, fallback int64) {
	value, present := patch[key]
	if !present {
		return
	}
	if n, ok := toInt64(value); ok {
		*field = n
		return
	}
	*field = fallback
}

func applyInterval(patch map[string]any, key string, field *int64, fallback int64) {
	applyInt(patch, key, field, fallback)
	if *field < minIntervalMs {
		*field = fallback
	}
}

func toInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		// CBOR-decoded patches carry positive integers as uint64.
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// Load reads and sanitizes settings from path. A missing file yields
// the defaults; a corrupt file is reported so the caller can decide
// whether to overwrite it.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("reading settings %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return Default(), fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return FromMap(raw), nil
}

// Save atomically persists settings to path: write to a temporary
// file in the same directory, sync, rename. Readers never see a
// partial file. The parent directory is created if needed.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return atomicWrite(path, append(data, '\n'))
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
