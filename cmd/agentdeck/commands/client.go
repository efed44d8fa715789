// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/agentdeck/agentdeck/lib/codec"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/monitor"
)

// dialTimeout bounds the unix socket connect. The daemon accepts
// immediately when it is up; anything longer means it is not.
const dialTimeout = 3 * time.Second

// monitorClient is a connection to the monitor daemon's unix socket.
type monitorClient struct {
	conn    net.Conn
	encoder *codec.Encoder
	decoder *codec.Decoder
}

// dialMonitor connects to the daemon socket. An empty socketPath falls
// back to the daemon config resolution (AGENTDECK_CONFIG, then the
// default state directory).
func dialMonitor(socketPath string) (*monitorClient, error) {
	if socketPath == "" {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		socketPath = cfg.Paths.Socket
	}

	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to monitor at %s (is agentdeck-monitor running?): %w", socketPath, err)
	}
	return &monitorClient{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		decoder: codec.NewDecoder(conn),
	}, nil
}

func (c *monitorClient) close() { c.conn.Close() }

func (c *monitorClient) send(control monitor.Control) error {
	return c.encoder.Encode(control)
}

// readFrame returns the next non-heartbeat frame.
func (c *monitorClient) readFrame() (monitor.Frame, error) {
	for {
		var frame monitor.Frame
		if err := c.decoder.Decode(&frame); err != nil {
			return monitor.Frame{}, fmt.Errorf("read from monitor: %w", err)
		}
		if frame.Type == "heartbeat" {
			continue
		}
		if frame.Type == "error" {
			return monitor.Frame{}, fmt.Errorf("monitor: %s", frame.Error)
		}
		return frame, nil
	}
}

// expectFrame reads frames until one of the wanted type arrives.
// Periodic flush snapshots can interleave with a control reply, so
// frames of other types are skipped, up to a sanity bound.
func (c *monitorClient) expectFrame(frameType string) (monitor.Frame, error) {
	for i := 0; i < 32; i++ {
		frame, err := c.readFrame()
		if err != nil {
			return monitor.Frame{}, err
		}
		if frame.Type == frameType {
			return frame, nil
		}
	}
	return monitor.Frame{}, fmt.Errorf("no %q frame from monitor", frameType)
}
