// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides agentdeck's standard CBOR encoding
// configuration.
//
// Agentdeck uses two serialization formats with a clear boundary:
//
//   - JSON for external surfaces: the persisted settings and repo
//     binding files, CLI output, and the on-disk agent logs it reads
//     (which are owned by the agent tools themselves).
//   - CBOR for the monitor socket protocol: snapshot frames,
//     notification frames, and control messages between the daemon
//     and its consumers.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): same logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the monitor socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
