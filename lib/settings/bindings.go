// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// LoadBindings reads the persisted repo binding table: a JSON object
// of "source:session_id" -> absolute repository path. A missing file
// yields an empty table. Non-string values are dropped.
func LoadBindings(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return map[string]string{}, fmt.Errorf("reading repo bindings %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return map[string]string{}, fmt.Errorf("parsing repo bindings %s: %w", path, err)
	}

	bindings := make(map[string]string, len(raw))
	for key, value := range raw {
		if repoPath, ok := value.(string); ok && repoPath != "" {
			bindings[key] = repoPath
		}
	}
	return bindings, nil
}

// SaveBindings atomically persists the repo binding table.
func SaveBindings(path string, bindings map[string]string) error {
	data, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling repo bindings: %w", err)
	}
	return atomicWrite(path, append(data, '\n'))
}

// DefaultDir returns the agentdeck state directory (~/.agentdeck).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentdeck"
	}
	return filepath.Join(home, ".agentdeck")
}

// SettingsPath returns the settings file path under dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, "settings.json")
}

// BindingsPath returns the repo bindings file path under dir.
func BindingsPath(dir string) string {
	return filepath.Join(dir, "repo-bindings.json")
}
