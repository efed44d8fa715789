// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus is the in-process publish/subscribe fan-out of
// normalized events. It decouples the source tailers from storage:
// tailers publish, the store subscribes, and neither knows about the
// other.
//
// Delivery is synchronous and unbuffered: Publish invokes every
// subscribed handler in subscription order before returning. There is
// no persistence and no delivery guarantee beyond the in-process call.
// A panic in one handler is recovered and logged so the remaining
// handlers still run.
package bus

import (
	"log/slog"
	"sync"

	"github.com/agentdeck/agentdeck/lib/schema"
)

// Handler consumes one normalized event.
type Handler func(schema.Event)

// Bus fans events out to subscribers. Safe for concurrent use: every
// tailer publishes from its own tick goroutine.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   int
	order    []int
	handlers map[int]Handler
}

// New returns an empty bus. Events published before the first
// subscription are dropped.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[int]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Handlers are invoked in subscription order. Unsubscribe is
// idempotent.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.order = append(b.order, id)
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.handlers[id]; !ok {
			return
		}
		delete(b.handlers, id)
		for i, existing := range b.order {
			if existing == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish synchronously delivers event to every currently subscribed
// handler. A handler panic is recovered and logged; it never
// suppresses delivery to the handlers after it.
func (b *Bus) Publish(event schema.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(handler, event)
	}
}

func (b *Bus) invoke(handler Handler, event schema.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("event handler panic",
				"source", event.Source,
				"session_id", event.SessionID,
				"panic", recovered,
			)
		}
	}()
	handler(event)
}
