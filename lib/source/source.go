// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package source defines the contract between the monitor controller
// and the per-tool tailers in its subpackages.
package source

import (
	"context"

	"github.com/agentdeck/agentdeck/lib/schema"
)

// Publisher receives normalized events from a tailer. In production it
// is the event bus's Publish method.
type Publisher func(schema.Event)

// Tailer follows one agent tool's on-disk activity and publishes
// normalized events. Poll is invoked on the source poll cadence; it
// must do one bounded pass (discover, read, publish) and return.
// Tailers report per-file problems through their logger and keep
// going; a Poll never fails as a whole.
type Tailer interface {
	Source() schema.Source
	Poll(ctx context.Context)
}
