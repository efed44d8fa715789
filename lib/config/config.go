// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the agentdeck
// monitor daemon.
//
// Configuration is loaded from a YAML file specified by the
// AGENTDECK_CONFIG environment variable or a --config flag. Unlike
// user settings (which the monitor rewrites at runtime), this file is
// operator-owned and read once at startup: log roots, the consumer
// socket, and the state directory.
//
// The file is optional. Every field has a working default derived from
// the conventional install locations of the agent tools, so a bare
// `agentdeck-monitor` with no config observes everything it can find.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Paths configures filesystem locations owned by the daemon.
	Paths PathsConfig `yaml:"paths"`

	// Roots configures where each source's logs are discovered.
	// Empty values fall back to the tool's conventional location,
	// honoring CODEX_HOME, OPENCODE_DATA_DIR, and CLAUDE_HOME.
	Roots RootsConfig `yaml:"roots"`

	// Limits configures retention caps. Zero values mean the
	// built-in defaults.
	Limits LimitsConfig `yaml:"limits"`
}

// PathsConfig configures filesystem locations owned by the daemon.
type PathsConfig struct {
	// StateDir holds settings.json and repo-bindings.json.
	StateDir string `yaml:"state_dir"`

	// Socket is the unix socket consumers connect to for snapshots.
	Socket string `yaml:"socket"`
}

// RootsConfig configures per-source log roots.
type RootsConfig struct {
	Claude   string `yaml:"claude"`
	Opencode string `yaml:"opencode"`
	Codex    string `yaml:"codex"`
}

// LimitsConfig configures retention caps.
type LimitsConfig struct {
	// MaxTrackedAgents caps the snapshot window; older entries are
	// evicted. Default 20.
	MaxTrackedAgents int `yaml:"max_tracked_agents"`

	// MaxFilesPerSource caps how many session files each JSONL
	// tailer follows at once, newest first. Default 20.
	MaxFilesPerSource int `yaml:"max_files_per_source"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".agentdeck")

	return &Config{
		Paths: PathsConfig{
			StateDir: stateDir,
			Socket:   filepath.Join(stateDir, "monitor.sock"),
		},
	}
}

// Load resolves the configuration: the explicit path if non-empty,
// else AGENTDECK_CONFIG, else defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AGENTDECK_CONFIG")
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${HOME} in path fields so config files stay
// portable across machines.
func (c *Config) expandVariables() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(path string) string {
		return strings.ReplaceAll(path, "${HOME}", homeDir)
	}
	c.Paths.StateDir = expand(c.Paths.StateDir)
	c.Paths.Socket = expand(c.Paths.Socket)
	c.Roots.Claude = expand(c.Roots.Claude)
	c.Roots.Opencode = expand(c.Roots.Opencode)
	c.Roots.Codex = expand(c.Roots.Codex)
}
