// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
	"github.com/agentdeck/agentdeck/lib/codec"
	"github.com/agentdeck/agentdeck/lib/schema"
	"github.com/agentdeck/agentdeck/lib/settings"
)

const (
	// heartbeatInterval is how often the server sends a heartbeat
	// frame to connected clients. Keeps the connection alive and lets
	// clients detect a dead daemon.
	heartbeatInterval = 10 * time.Second

	// controlBufferSize is the channel capacity for inbound control
	// messages from a single client.
	controlBufferSize = 8
)

// Frame is the CBOR frame sent to a connected consumer.
//
// Wire protocol:
//
//	Server → Client: Frame{Type: "snapshot", Snapshot: ...}      (per flush)
//	Server → Client: Frame{Type: "notification", Notification: ...}
//	Server → Client: Frame{Type: "settings", Settings: ...}      (reply)
//	Server → Client: Frame{Type: "heartbeat"}                    (periodic)
//	Client → Server: Control{Op: "bind-repo" | "update-settings" | "get-settings"}
type Frame struct {
	Type         string               `cbor:"type"`
	Snapshot     *schema.Snapshot     `cbor:"snapshot,omitempty"`
	Notification *schema.Notification `cbor:"notification,omitempty"`
	Settings     *settings.Settings   `cbor:"settings,omitempty"`
	Error        string               `cbor:"error,omitempty"`
}

// Control is the CBOR message received from a client.
type Control struct {
	Op        string         `cbor:"op"`
	Source    string         `cbor:"source,omitempty"`
	SessionID string         `cbor:"session_id,omitempty"`
	RepoPath  string         `cbor:"repo_path,omitempty"`
	Patch     map[string]any `cbor:"patch,omitempty"`
}

// Server serves snapshots and accepts control operations on a unix
// socket.
type Server struct {
	logger     *slog.Logger
	clock      clock.Clock
	controller *Controller
	socketPath string
	listener   net.Listener
}

// NewServer returns an unstarted server.
func NewServer(logger *slog.Logger, clk clock.Clock, controller *Controller, socketPath string) *Server {
	return &Server{
		logger:     logger,
		clock:      clk,
		controller: controller,
		socketPath: socketPath,
	}
}

// Listen binds the unix socket, replacing a stale socket file left by
// a previous run.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound socket path. Valid after Listen.
func (s *Server) Addr() string { return s.socketPath }

// Serve accepts connections until ctx is cancelled. Blocks.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn streams updates to one client and applies its control
// operations. The client receives the current snapshot immediately so
// one-shot consumers need not wait out a flush interval.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	encoder := codec.NewEncoder(conn)

	// Register before the initial snapshot: by the time the client
	// sees it, the subscription is already live and no flush is
	// missed.
	updates, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	snapshot := s.controller.Snapshot()
	if err := encoder.Encode(Frame{Type: "snapshot", Snapshot: &snapshot}); err != nil {
		return
	}

	// Close the connection on cancellation to unblock the reader
	// goroutine's blocking decode.
	handlerDone := make(chan struct{})
	defer close(handlerDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handlerDone:
		}
	}()

	controls := make(chan Control, controlBufferSize)
	readerDone := make(chan error, 1)
	go func() {
		readerDone <- readControls(conn, controls)
	}()

	heartbeat := s.clock.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case update := <-updates:
			if err := encoder.Encode(Frame{Type: "snapshot", Snapshot: &update.Snapshot}); err != nil {
				return
			}
			for i := range update.Notifications {
				if err := encoder.Encode(Frame{Type: "notification", Notification: &update.Notifications[i]}); err != nil {
					return
				}
			}

		case control := <-controls:
			if err := s.applyControl(encoder, control); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(Frame{Type: "heartbeat"}); err != nil {
				return
			}

		case err := <-readerDone:
			if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
				s.logger.Debug("client read error", "error", err)
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

// applyControl dispatches one client operation. Unknown operations get
// an error frame rather than a dropped connection; client and daemon
// versions may drift.
func (s *Server) applyControl(encoder *codec.Encoder, control Control) error {
	switch control.Op {
	case "bind-repo":
		sourceName := schema.Source(control.Source)
		if !sourceName.Valid() || control.SessionID == "" {
			return encoder.Encode(Frame{Type: "error", Error: "bind-repo requires a valid source and session_id"})
		}
		s.controller.BindRepo(sourceName, control.SessionID, control.RepoPath)
		snapshot := s.controller.Snapshot()
		return encoder.Encode(Frame{Type: "snapshot", Snapshot: &snapshot})

	case "update-settings":
		updated := s.controller.UpdateSettings(control.Patch)
		return encoder.Encode(Frame{Type: "settings", Settings: &updated})

	case "get-settings":
		current := s.controller.Settings()
		return encoder.Encode(Frame{Type: "settings", Settings: &current})

	default:
		return encoder.Encode(Frame{Type: "error", Error: "unknown op: " + control.Op})
	}
}

func readControls(conn net.Conn, controls chan<- Control) error {
	decoder := codec.NewDecoder(conn)
	for {
		var control Control
		if err := decoder.Decode(&control); err != nil {
			return err
		}
		controls <- control
	}
}
