// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"log/slog"
	"testing"

	"github.com/agentdeck/agentdeck/lib/schema"
)

func testEvent(session string) schema.Event {
	return schema.Event{
		Source:    schema.SourceCodex,
		SessionID: session,
		Type:      schema.EventStatus,
		StateHint: schema.StateRunning,
	}
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New(slog.Default())

	var order []string
	b.Subscribe(func(schema.Event) { order = append(order, "first") })
	b.Subscribe(func(schema.Event) { order = append(order, "second") })
	b.Subscribe(func(schema.Event) { order = append(order, "third") })

	b.Publish(testEvent("s"))

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("delivered to %d handlers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", order, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(slog.Default())

	calls := 0
	unsubscribe := b.Subscribe(func(schema.Event) { calls++ })

	b.Publish(testEvent("s"))
	unsubscribe()
	b.Publish(testEvent("s"))
	unsubscribe() // idempotent

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestHandlerPanicDoesNotSuppressOthers(t *testing.T) {
	b := New(slog.Default())

	delivered := false
	b.Subscribe(func(schema.Event) { panic("boom") })
	b.Subscribe(func(schema.Event) { delivered = true })

	b.Publish(testEvent("s"))

	if !delivered {
		t.Fatal("panic in the first handler suppressed delivery to the second")
	}
}

func TestPublishWithoutSubscribersIsHarmless(t *testing.T) {
	b := New(slog.Default())
	b.Publish(testEvent("s"))
}
