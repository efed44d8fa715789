// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package tailer provides incremental line-oriented file reading for
// the source tailers: per-file byte cursors that survive partial
// writes and truncation, bounded newest-first file discovery, and a
// ticker-driven runner with single-flight polling.
package tailer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Cursor tracks a byte offset into one append-only log file and
// returns only the complete lines appended since the previous read.
//
// Agent tools write log lines with separate write calls, so a read can
// observe a line that is only half flushed. The cursor buffers the
// trailing partial line and prepends it to the next read, guaranteeing
// callers only ever see whole lines.
type Cursor struct {
	path    string
	offset  int64
	partial []byte
}

// NewCursor returns a cursor for path positioned at offset zero. Use
// SkipToEnd to start at the current end of file instead.
func NewCursor(path string) *Cursor {
	return &Cursor{path: path}
}

// Path returns the file this cursor reads.
func (c *Cursor) Path() string { return c.path }

// Offset returns the current byte offset.
func (c *Cursor) Offset() int64 { return c.offset }

// SkipToEnd moves the cursor to the current end of file without
// reading, discarding any buffered partial line. Used after a seed
// read so live tailing begins at the seed boundary.
func (c *Cursor) SkipToEnd() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	c.offset = info.Size()
	c.partial = nil
	return nil
}

// ReadNewLines returns the complete lines appended since the last
// call. A file that shrank below the cursor offset was truncated or
// replaced; the cursor resets to zero and rereads from the start
// rather than serving garbage from a stale offset.
func (c *Cursor) ReadNewLines() ([]string, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", c.path, err)
	}
	if info.Size() < c.offset {
		c.offset = 0
		c.partial = nil
	}
	if info.Size() == c.offset {
		return nil, nil
	}

	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer file.Close()

	if _, err := file.Seek(c.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", c.path, err)
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}
	c.offset += int64(len(chunk))

	buffered := append(c.partial, chunk...)
	c.partial = nil

	var lines []string
	for {
		newline := bytes.IndexByte(buffered, '\n')
		if newline < 0 {
			break
		}
		line := bytes.TrimRight(buffered[:newline], "\r")
		if len(line) > 0 {
			lines = append(lines, string(line))
		}
		buffered = buffered[newline+1:]
	}
	if len(buffered) > 0 {
		c.partial = append([]byte(nil), buffered...)
	}
	return lines, nil
}

// TailLines returns the complete lines contained in the last maxBytes
// of the file, plus the file size at read time. Used to seed a newly
// discovered session with its recent history without replaying the
// whole file. When the read does not start at offset zero the first
// line fragment is dropped as incomplete.
func TailLines(path string, maxBytes int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	start := int64(0)
	if maxBytes > 0 && size > maxBytes {
		start = size - maxBytes
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", path, err)
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}

	raw := bytes.Split(chunk, []byte("\n"))
	if start > 0 && len(raw) > 0 {
		raw = raw[1:]
	}
	var lines []string
	for _, line := range raw {
		line = bytes.TrimRight(line, "\r")
		if len(line) > 0 {
			lines = append(lines, string(line))
		}
	}
	return lines, size, nil
}

// HeadLines returns up to n lines from the start of the file. Used to
// read session metadata records that tools write as the first lines of
// a log.
func HeadLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var (
		lines   []string
		partial []byte
		buf     = make([]byte, 32*1024)
	)
	for len(lines) < n {
		read, err := file.Read(buf)
		if read > 0 {
			partial = append(partial, buf[:read]...)
			for len(lines) < n {
				newline := bytes.IndexByte(partial, '\n')
				if newline < 0 {
					break
				}
				line := bytes.TrimRight(partial[:newline], "\r")
				if len(line) > 0 {
					lines = append(lines, string(line))
				}
				partial = partial[newline+1:]
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return lines, nil
}
