// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package tailer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
)

// Runner drives a poll function on a fixed cadence. Polls are
// single-flight: if one is still in progress when the next tick fires,
// the tick is skipped rather than stacking a second poll on a slow
// filesystem or subprocess. Poll errors are logged and the cadence
// continues; a transient failure must not kill the loop.
type Runner struct {
	name     string
	logger   *slog.Logger
	clock    clock.Clock
	interval atomic.Int64 // nanoseconds
	poll     func(ctx context.Context)
	inFlight atomic.Bool
}

// NewRunner returns a runner that invokes poll every interval once Run
// is called. The poll function is responsible for its own error
// logging; the runner only guards cadence and reentrancy.
func NewRunner(name string, logger *slog.Logger, clk clock.Clock, interval time.Duration, poll func(ctx context.Context)) *Runner {
	r := &Runner{
		name:   name,
		logger: logger,
		clock:  clk,
		poll:   poll,
	}
	r.interval.Store(int64(interval))
	return r
}

// SetInterval changes the cadence. Takes effect on the next tick
// cycle; the running loop picks it up via Reset.
func (r *Runner) SetInterval(interval time.Duration) {
	r.interval.Store(int64(interval))
}

// Run polls immediately, then on every tick until ctx is cancelled.
// Blocks; callers run it in a goroutine.
func (r *Runner) Run(ctx context.Context) {
	r.tick(ctx)

	current := time.Duration(r.interval.Load())
	ticker := r.clock.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if next := time.Duration(r.interval.Load()); next != current {
				current = next
				ticker.Reset(current)
			}
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Debug("poll still in flight, skipping tick", "runner", r.name)
		return
	}
	defer r.inFlight.Store(false)

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("poll panicked", "runner", r.name, "panic", recovered)
		}
	}()
	r.poll(ctx)
}
