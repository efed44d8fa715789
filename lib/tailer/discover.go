// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package tailer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultDiscoverLimit bounds how many session files a tailer follows
// at once. A long-lived install accumulates thousands of old session
// logs; only the most recently modified ones can be live.
const DefaultDiscoverLimit = 20

// DiscoveredFile is one candidate log file with its modification time.
type DiscoveredFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Discover walks root and returns the newest files accepted by match,
// sorted by modification time descending and capped at limit. A
// missing root is a normal condition (the tool is not installed) and
// yields an empty result, not an error. Unreadable subtrees are
// skipped.
func Discover(root string, match func(path string, entry fs.DirEntry) bool, limit int) []DiscoveredFile {
	if limit <= 0 {
		limit = DefaultDiscoverLimit
	}
	if _, err := os.Stat(root); err != nil {
		return nil
	}

	var files []DiscoveredFile
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !match(path, entry) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, DiscoveredFile{
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Path < files[j].Path
	})
	if len(files) > limit {
		files = files[:limit]
	}
	return files
}

// MatchExtension returns a match function accepting regular files with
// the given extension (including the dot).
func MatchExtension(ext string) func(path string, entry fs.DirEntry) bool {
	return func(path string, entry fs.DirEntry) bool {
		return entry.Type().IsRegular() && filepath.Ext(path) == ext
	}
}
